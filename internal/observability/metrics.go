package observability

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iamwavecut/ngguard/internal/event"
)

var (
	registerOnce sync.Once

	updateProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ngguard_update_processing_duration_seconds",
			Help:    "Time spent by each handler on an update",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "status"},
	)

	captchaOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngguard_captcha_outcomes_total",
			Help: "Captcha challenges by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	captchaSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngguard_captcha_skipped_total",
			Help: "Users let through or removed without a challenge",
		},
		[]string{"reason"},
	)

	warningsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ngguard_warnings_total",
			Help: "Warnings issued",
		},
	)

	bansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ngguard_bans_total",
			Help: "Bans attempted by reason and result",
		},
		[]string{"reason", "outcome"},
	)
)

// Register adds the collectors to reg once per process.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			updateProcessingDuration,
			captchaOutcomesTotal,
			captchaSkippedTotal,
			warningsTotal,
			bansTotal,
		)
	})
}

// ObserveHandler matches the update processor observer hook.
func ObserveHandler(handler string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	updateProcessingDuration.WithLabelValues(handler, status).Observe(time.Since(started).Seconds())
}

// RecordEvent is an event bus subscriber turning moderation events into counters.
func RecordEvent(_ context.Context, e event.Event) {
	switch e.Type {
	case event.TypeCaptchaResolved:
		captchaOutcomesTotal.WithLabelValues(e.Provider, e.Outcome).Inc()
	case event.TypeCaptchaSkipped:
		captchaSkippedTotal.WithLabelValues(e.Reason).Inc()
	case event.TypeWarningIssued:
		warningsTotal.Inc()
	case event.TypeUserBanned:
		bansTotal.WithLabelValues(e.Reason, e.Outcome).Inc()
	}
}
