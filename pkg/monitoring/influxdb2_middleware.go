package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2API "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rebuild-dev/rebuild-server/internal/config"
	"github.com/rebuild-dev/rebuild-server/pkg/dto"
	"github.com/rebuild-dev/rebuild-server/pkg/logging"
	"github.com/rebuild-dev/rebuild-server/pkg/storage"
	"github.com/rebuild-dev/rebuild-server/pkg/util"
)

const (
	// influxdbContextKey is a key to reference the influxdb data point in the request context.
	influxdbContextKey dto.ContextKey = "influxdb data point"
	// measurementPrefix allows easier filtering in influxdb.
	measurementPrefix = "rebuild_"
	MeasurementStore  = measurementPrefix + "store"

	// The keys for the monitored tags and fields.
	influxKeyResource  = "resource"
	influxKeyEntityID  = "entity_id"
	influxKeyEventType = "event_type"
	influxKeyCount     = "count"
	influxKeyDuration  = "duration"
	influxKeyStatus    = "status"
	influxKeyStage     = "stage"

	influxDBPingAttempts = 5
)

var (
	errInfluxDBNotReady = errors.New("influxdb is not ready")
	log                 = logging.GetLogger("monitoring")
	influxClient        influxdb2API.WriteAPI
)

// InitializeInfluxDB creates the writer for data points. Without a configured URL no data points are written.
func InitializeInfluxDB(db *config.InfluxDB) (cancel func()) {
	if db.URL == "" {
		return func() {}
	}

	client := influxdb2.NewClient(db.URL, db.Token)
	influxClient = client.WriteAPI(db.Organization, db.Bucket)
	go func(writeErrors <-chan error) {
		for err := range writeErrors {
			log.WithError(err).Warn("Failed writing to InfluxDB")
		}
	}(influxClient.Errors())

	ctx, stopPing := context.WithCancel(context.Background())
	go pingInfluxDB(ctx, client, db.URL)

	cancel = func() {
		stopPing()
		influxClient.Flush()
		client.Close()
		influxClient = nil
	}
	return cancel
}

// pingInfluxDB warns once if the server cannot be reached. Data points are buffered in the meantime.
func pingInfluxDB(ctx context.Context, client influxdb2.Client, url string) {
	err := util.RetryExponentialAttemptsContext(ctx, influxDBPingAttempts, time.Second, func() error {
		ok, err := client.Ping(ctx)
		if err != nil {
			return fmt.Errorf("influxdb ping failed: %w", err)
		} else if !ok {
			return errInfluxDBNotReady
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.WithError(err).WithField("url", url).Warn("InfluxDB is not reachable")
	}
}

// InfluxDB2Middleware is a middleware to send events to an influx database.
func InfluxDB2Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := influxdb2.NewPointWithMeasurement(measurementPrefix + routeName(r))

		start := time.Now().UTC()
		p.SetTime(time.Now())

		ctx := context.WithValue(r.Context(), influxdbContextKey, p)
		requestWithPoint := r.WithContext(ctx)
		lrw := logging.NewLoggingResponseWriter(w)
		next.ServeHTTP(lrw, requestWithPoint)

		p.AddField(influxKeyDuration, time.Now().UTC().Sub(start).Nanoseconds())
		p.AddTag(influxKeyStatus, strconv.Itoa(lrw.StatusCode))

		WriteInfluxPoint(p)
	})
}

// AddEntityMonitoringData adds the resource and the id of the requested entity to the data point of the request.
func AddEntityMonitoringData(request *http.Request, resource string, id int) {
	addInfluxDBTag(request, influxKeyResource, resource)
	addInfluxDBTag(request, influxKeyEntityID, strconv.Itoa(id))
}

// StoreObserver returns a storage.Observer that writes a data point for every write operation of a store.
func StoreObserver() storage.Observer {
	return func(event storage.Event) {
		WriteInfluxPoint(storePoint(event))
	}
}

// MonitorStoreSize periodically writes the number of entities of the store until the context is done.
func MonitorStoreSize(ctx context.Context, resource string, count func() int, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
			WriteInfluxPoint(storePoint(storage.Event{Type: storage.Periodically, Store: resource, Count: count()}))
		}
	}
}

func storePoint(event storage.Event) *write.Point {
	p := influxdb2.NewPointWithMeasurement(MeasurementStore)
	p.AddTag(influxKeyResource, event.Store)
	p.AddTag(influxKeyEventType, string(event.Type))
	if event.Type != storage.Periodically {
		p.AddTag(influxKeyEntityID, strconv.Itoa(event.ID))
	}
	p.AddField(influxKeyCount, event.Count)
	return p
}

// WriteInfluxPoint schedules the influx data point to be sent.
func WriteInfluxPoint(p *write.Point) {
	if influxClient != nil {
		p.AddTag(influxKeyStage, config.Config.InfluxDB.Stage)
		influxClient.WritePoint(p)
	}
}

// addInfluxDBTag adds a tag to the influxdb data point in the request.
func addInfluxDBTag(r *http.Request, key, value string) {
	if p := dataPointFromRequest(r); p != nil {
		p.AddTag(key, value)
	}
}

// dataPointFromRequest returns the data point in the passed request.
func dataPointFromRequest(r *http.Request) *write.Point {
	p, ok := r.Context().Value(influxdbContextKey).(*write.Point)
	if !ok {
		log.WithContext(r.Context()).Debug("Request does not contain an influxdb data point")
		return nil
	}
	return p
}

// routeName returns the name of the matched route or "unknown".
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil && route.GetName() != "" {
		return route.GetName()
	}
	return "unknown"
}
