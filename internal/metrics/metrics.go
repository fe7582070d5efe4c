package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tracks broadcast fan-out volume (new rows only, re-broadcasts excluded).
	BroadcastsFannedOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rfq_broadcasts_fanned_out_total",
			Help: "Number of broadcast rows created across all RFQs.",
		},
	)

	// Race outcomes of accept responses, by result (won/lost).
	HoldRaceOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_hold_race_outcomes_total",
			Help: "Priority-hold acquisition attempts by outcome.",
		},
		[]string{"outcome"},
	)

	ResponsesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_responses_recorded_total",
			Help: "Supplier responses recorded, by response type.",
		},
		[]string{"type"},
	)

	AwardsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_awards_total",
			Help: "RFQ awards, by path (race or manual).",
		},
		[]string{"path"},
	)

	NotifyPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rfq_notify_publish_errors_total",
			Help: "Notification publish failures, by event type.",
		},
		[]string{"event"},
	)
)

func IncRaceOutcome(won bool) {
	if won {
		HoldRaceOutcomes.WithLabelValues("won").Inc()
		return
	}
	HoldRaceOutcomes.WithLabelValues("lost").Inc()
}

// StartServer exposes /metrics on a side listener, Prometheus scrape only.
func StartServer(addr string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		http.ListenAndServe(addr, mux) //nolint:errcheck
	}()
}
