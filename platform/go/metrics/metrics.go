package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	provisionTotal  *prometheus.CounterVec
	resolverLookups *prometheus.CounterVec
)

func register() {
	once.Do(func() {
		provisionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queuex",
			Subsystem: "provisioner",
			Name:      "operations_total",
			Help:      "Tenant database provisioning operations by op and outcome.",
		}, []string{"op", "outcome"})

		resolverLookups = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queuex",
			Subsystem: "tenant_resolver",
			Name:      "lookups_total",
			Help:      "Tenant resolutions by result (hit, miss, not_found, error).",
		}, []string{"result"})
	})
}

// RecordProvision counts one create/delete provisioning operation.
func RecordProvision(op, outcome string) {
	register()
	provisionTotal.WithLabelValues(op, outcome).Inc()
}

// RecordResolverLookup counts one request-time tenant resolution.
func RecordResolverLookup(result string) {
	register()
	resolverLookups.WithLabelValues(result).Inc()
}

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	register()
	return promhttp.Handler()
}
