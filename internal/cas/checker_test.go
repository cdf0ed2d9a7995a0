package cas

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestCASCheckerDecodesAndCaches(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("user_id") == "666" {
			fmt.Fprint(w, `{"ok":true,"result":{"offenses":3}}`)
			return
		}
		fmt.Fprint(w, `{"ok":false,"description":"Record not found."}`)
	}))
	t.Cleanup(srv.Close)

	checker := NewCASChecker(srv.URL+"/check?user_id=%d", time.Second)
	ctx := context.Background()

	banned, err := checker.IsBanned(ctx, 666)
	if err != nil || !banned {
		t.Fatalf("expected banned, got %v %v", banned, err)
	}
	banned, err = checker.IsBanned(ctx, 666)
	if err != nil || !banned {
		t.Fatalf("expected cached banned, got %v %v", banned, err)
	}
	if hits.Load() != 1 {
		t.Fatalf("banned user should be cached, hits=%d", hits.Load())
	}

	banned, err = checker.IsBanned(ctx, 1)
	if err != nil || banned {
		t.Fatalf("expected clean user, got %v %v", banned, err)
	}
}

func TestCheckerRetriesThenFails(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	checker := NewLolsChecker(srv.URL+"/account?id=%d", time.Second)
	checker.retryStep = time.Millisecond

	if _, err := checker.IsBanned(context.Background(), 5); err == nil {
		t.Fatalf("expected error")
	}
	if hits.Load() != maxRetries {
		t.Fatalf("expected %d attempts, got %d", maxRetries, hits.Load())
	}
}

type staticChecker struct {
	banned bool
	err    error
}

func (s staticChecker) IsBanned(context.Context, int64) (bool, error) {
	return s.banned, s.err
}

func TestMultiSkipsFailingCheckers(t *testing.T) {
	t.Parallel()

	failing := staticChecker{err: fmt.Errorf("down")}
	m := Multi{failing, staticChecker{banned: true}}
	banned, err := m.IsBanned(context.Background(), 1)
	if err != nil || !banned {
		t.Fatalf("expected banned from second checker, got %v %v", banned, err)
	}

	m = Multi{failing, failing}
	if _, err := m.IsBanned(context.Background(), 1); err == nil {
		t.Fatalf("expected error when every checker fails")
	}
}
