package monitoring

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rebuild-dev/rebuild-server/pkg/logging"
	"github.com/rebuild-dev/rebuild-server/pkg/storage"
)

const Namespace = "rebuild"

const (
	NameRequestsTotal = "http_requests_total"
	NameEntities      = "entities"
	NameStoreEvents   = "store_events_total"
)

var RequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      NameRequestsTotal,
		Help:      "Total HTTP requests by route, method and status code",
		Namespace: Namespace,
	},
	[]string{"route", "method", "code"},
)

var Entities = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name:      NameEntities,
		Help:      "Number of stored entities per resource",
		Namespace: Namespace,
	},
	[]string{"resource"},
)

var StoreEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name:      NameStoreEvents,
		Help:      "Total write operations per resource and event type",
		Namespace: Namespace,
	},
	[]string{"resource", "event_type"},
)

// PrometheusMiddleware counts every request by its route name.
func PrometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lrw := logging.NewLoggingResponseWriter(w)
		next.ServeHTTP(lrw, r)
		RequestsTotal.WithLabelValues(routeName(r), r.Method, strconv.Itoa(lrw.StatusCode)).Inc()
	})
}

// PrometheusObserver returns a storage.Observer keeping the entity gauge and the event counter up to date.
func PrometheusObserver() storage.Observer {
	return func(event storage.Event) {
		Entities.WithLabelValues(event.Store).Set(float64(event.Count))
		StoreEvents.WithLabelValues(event.Store, string(event.Type)).Inc()
	}
}

// PrometheusHandler serves the collected metrics.
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}
