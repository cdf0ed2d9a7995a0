package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iamwavecut/ngguard/internal/event"
)

func TestRouterServesHealthAndMetrics(t *testing.T) {
	t.Parallel()

	Register(prometheus.DefaultRegisterer)
	ObserveHandler("captcha", time.Now(), nil)

	srv := httptest.NewServer(NewServer("").Router())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected healthz status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "ngguard_update_processing_duration_seconds") {
		t.Fatalf("handler histogram missing from metrics output")
	}
}

func TestRecordEventCountsOutcomes(t *testing.T) {
	t.Parallel()

	before := testutil.ToFloat64(captchaOutcomesTotal.WithLabelValues("simple", "cancelled"))
	RecordEvent(context.Background(), event.Event{Type: event.TypeCaptchaResolved, Provider: "simple", Outcome: "cancelled"})
	after := testutil.ToFloat64(captchaOutcomesTotal.WithLabelValues("simple", "cancelled"))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by one, got %v", after-before)
	}
}

func TestServerStartStop(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
