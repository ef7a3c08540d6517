package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adspot",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adspot",
			Name:      "reservations_total",
			Help:      "Reservation attempts by result.",
		},
		[]string{"result"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adspot",
			Name:      "settlements_total",
			Help:      "Settlement decisions by result.",
		},
		[]string{"result"},
	)

	slotsReclaimed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adspot",
			Name:      "slots_reclaimed_total",
			Help:      "Slots returned to inventory by the expiry sweep.",
		},
	)

	cacheFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adspot",
			Name:      "cache_fallbacks_total",
			Help:      "Availability reads served by the in-memory fallback cache.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, reservations, settlements, slotsReclaimed, cacheFallbacks)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncReservation records a reservation attempt outcome
// (reserved, replayed, conflict, error).
func IncReservation(result string) {
	reservations.WithLabelValues(result).Inc()
}

// IncSettlement records a settlement outcome (approved, rejected, error).
func IncSettlement(result string) {
	settlements.WithLabelValues(result).Inc()
}

// AddReclaimed counts slots freed by one reclaimer sweep.
func AddReclaimed(n int) {
	slotsReclaimed.Add(float64(n))
}

// IncCacheFallback counts a read served from the fallback cache while
// redis is down.
func IncCacheFallback() {
	cacheFallbacks.Inc()
}
