package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"runtime/debug"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"
	"github.com/rebuild-dev/rebuild-server/internal/api"
	"github.com/rebuild-dev/rebuild-server/internal/api/auth"
	"github.com/rebuild-dev/rebuild-server/internal/config"
	"github.com/rebuild-dev/rebuild-server/internal/resource"
	"github.com/rebuild-dev/rebuild-server/pkg/logging"
	"github.com/rebuild-dev/rebuild-server/pkg/monitoring"
	"golang.org/x/sys/unix"
)

var (
	gracefulShutdownWait = 15 * time.Second
	storeSizeInterval    = time.Minute
	log                  = logging.GetLogger("main")
)

func getVcsRevision(short bool) string {
	vcsRevision := "unknown"
	vcsModified := false

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				vcsRevision = setting.Value
			case "vcs.modified":
				var err error
				vcsModified, err = strconv.ParseBool(setting.Value)
				if err != nil {
					vcsModified = true
					log.WithError(err).Error("Could not parse the vcs.modified setting")
				}
			}
		}
	}

	const shortRevisionLength = 7
	if short && len(vcsRevision) > shortRevisionLength {
		vcsRevision = vcsRevision[:shortRevisionLength]
	}
	if vcsModified {
		return vcsRevision + "-modified"
	}
	return vcsRevision
}

func initSentry(options *sentry.ClientOptions, profilingEnabled bool) {
	if options.Release == "" {
		options.Release = getVcsRevision(false)
	}

	options.BeforeSendTransaction = func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
		if event.Tags == nil {
			event.Tags = make(map[string]string)
		}
		event.Tags["go_profiling"] = strconv.FormatBool(profilingEnabled)
		return event
	}

	if err := sentry.Init(*options); err != nil {
		log.Errorf("sentry.Init: %s", err)
	}
}

func shutdownSentry() {
	if err := recover(); err != nil {
		sentry.CurrentHub().Recover(err)
		sentry.Flush(logging.GracefulSentryShutdown)
	}
}

func initProfiling(options config.Profiling) (cancel func()) {
	if !options.CPUEnabled {
		return func() {}
	}

	profile, err := os.Create(options.CPUFile)
	if err != nil {
		log.WithError(err).Error("Error while opening the profile file")
		return func() {}
	}

	log.Debug("Starting CPU profiler")
	if err := pprof.StartCPUProfile(profile); err != nil {
		log.WithError(err).Error("Error while starting the CPU profiler")
	}
	return func() {
		log.Debug("Stopping CPU profiler")
		pprof.StopCPUProfile()
		if err := profile.Close(); err != nil {
			log.WithError(err).Error("Error while closing profile file")
		}
	}
}

// initRegistry creates the stores, connects them to the event hub and the monitoring, and loads the seed data.
func initRegistry(ctx context.Context, hub *api.EventHub) *resource.Registry {
	registry := resource.NewRegistry(hub.Publish, monitoring.StoreObserver(), monitoring.PrometheusObserver())

	if config.Config.Seed.Enabled {
		seed := resource.DefaultSeed()
		if config.Config.Seed.File != "" {
			var err error
			seed, err = resource.LoadSeed(config.Config.Seed.File)
			if err != nil {
				log.WithError(err).WithField("file", config.Config.Seed.File).Fatal("Error loading seed data")
			}
		}
		registry.SeedIfEmpty(seed)
	}

	go monitoring.MonitorStoreSize(ctx, registry.Users.Name(), registry.Users.Count, storeSizeInterval)
	go monitoring.MonitorStoreSize(ctx, registry.Roles.Name(), registry.Roles.Count, storeSizeInterval)
	return registry
}

// initRouter builds a router that serves the mock API.
func initRouter(ctx context.Context) *mux.Router {
	hub := api.NewEventHub()
	registry := initRegistry(ctx, hub)
	issuer := auth.NewIssuer(config.Config.Auth.Secret, time.Duration(config.Config.Auth.TokenTTL)*time.Second)
	return api.NewRouter(registry, issuer, hub)
}

// initServer creates a server that serves the routes provided by the router.
func initServer(router *mux.Router) *http.Server {
	sentryHandler := sentryhttp.New(sentryhttp.Options{}).Handle(router)
	const readTimeout = 15 * time.Second
	const idleTimeout = 60 * time.Second

	return &http.Server{
		Addr: config.Config.Server.URL().Host,
		// A WriteTimeout would terminate the long-lived event streams.
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		Handler:           api.NewCORSHandler(sentryHandler),
	}
}

func runServer(router *mux.Router, server *http.Server, cancel context.CancelFunc) {
	defer cancel()
	defer shutdownSentry() // shutdownSentry must be executed in the main goroutine.

	httpListeners := getHTTPListeners(server)
	notifySystemd(router)
	serveHTTPListeners(server, httpListeners)
}

func getHTTPListeners(server *http.Server) (httpListeners []net.Listener) {
	var err error
	if config.Config.Server.SystemdSocketActivation {
		httpListeners, err = activation.Listeners()
	} else {
		var httpListener net.Listener
		httpListener, err = net.Listen("tcp", server.Addr)
		httpListeners = append(httpListeners, httpListener)
	}
	if err != nil || len(httpListeners) == 0 {
		log.WithError(err).
			WithField("listeners", httpListeners).
			WithField("systemd_socket", config.Config.Server.SystemdSocketActivation).
			Fatal("Failed listening to any socket")
		return nil
	}
	return httpListeners
}

func serveHTTPListeners(server *http.Server, httpListeners []net.Listener) {
	var wg sync.WaitGroup
	wg.Add(len(httpListeners))
	for _, l := range httpListeners {
		go func(listener net.Listener) {
			defer wg.Done()
			log.WithField("address", listener.Addr()).Info("Serving Listener")
			serveHTTPListener(server, listener)
		}(l)
	}
	wg.Wait()
}

func serveHTTPListener(server *http.Server, listener net.Listener) {
	var err error
	if config.Config.Server.TLS.Active {
		server.TLSConfig = config.TLSConfig
		log.WithField("CertFile", config.Config.Server.TLS.CertFile).
			WithField("KeyFile", config.Config.Server.TLS.KeyFile).
			Debug("Using TLS")
		err = server.ServeTLS(listener, config.Config.Server.TLS.CertFile, config.Config.Server.TLS.KeyFile)
	} else {
		err = server.Serve(listener)
	}

	if errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).WithField("listener", listener.Addr()).Info("Server closed")
	} else {
		log.WithError(err).WithField("listener", listener.Addr()).Error("Error during listening and serving")
	}
}

func notifySystemd(router *mux.Router) {
	notify, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	switch {
	case err == nil && !notify:
		log.Debug("Systemd Readiness Notification not supported")
	case err != nil:
		log.WithError(err).WithField("notify", notify).Warn("Failed notifying Readiness to Systemd")
	default:
		log.Trace("Notified Readiness to Systemd")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		log.WithError(err).Debug("Systemd Watchdog not supported")
		return
	}
	go systemdWatchdogLoop(context.Background(), router, interval)
}

// healthURL returns the URL of the health route reachable from this host.
func healthURL(router *mux.Router) (string, error) {
	healthRoute, err := router.Get(api.HealthPath).URL()
	if err != nil {
		return "", err
	}
	url := config.Config.Server.URL().String() + healthRoute.String()

	// Workaround for certificate subject names
	unspecifiedAddresses := regexp.MustCompile(`0\.0\.0\.0|\[::]`)
	return unspecifiedAddresses.ReplaceAllString(url, "localhost"), nil
}

func systemdWatchdogLoop(ctx context.Context, router *mux.Router, interval time.Duration) {
	url, err := healthURL(router)
	if err != nil {
		log.WithError(err).Error("Failed to parse Health route")
		return
	}

	client := &http.Client{}
	if config.Config.Server.TLS.Active {
		tlsConfig := &tls.Config{RootCAs: x509.NewCertPool()} // #nosec G402 The default MinTLSVersion is secure.
		caCertBytes, err := os.ReadFile(config.Config.Server.TLS.CAFile)
		if err != nil {
			log.WithError(err).Warn("Cannot read tls ca file")
		} else {
			ok := tlsConfig.RootCAs.AppendCertsFromPEM(caCertBytes)
			log.WithField("success", ok).Trace("Loaded CA certificate")
		}
		client.Transport = &http.Transport{TLSClientConfig: tlsConfig}
	}

	// notificationIntervalFactor defines how many more notifications we send than required.
	const notificationIntervalFactor = 2
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval / notificationIntervalFactor):
			notifySystemdWatchdog(ctx, url, client)
		}
	}
}

func notifySystemdWatchdog(ctx context.Context, url string, client *http.Client) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		log.WithError(err).Debug("Failed watchdog health check")
		return
	}
	_ = resp.Body.Close()

	notify, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
	switch {
	case err == nil && !notify:
		log.Debug("Systemd Watchdog Notification not supported")
	case err != nil:
		log.WithError(err).WithField("notify", notify).Warn("Failed notifying Systemd Watchdog")
	default:
		log.Trace("Notified Systemd Watchdog")
	}
}

// shutdownOnOSSignal listens for a signal from the operating system.
// When receiving a signal the server shuts down but waits up to 15 seconds to close remaining connections.
// SIGUSR1 stops the CPU profiler and keeps the server running.
func shutdownOnOSSignal(server *http.Server, ctx context.Context, stopProfiling func()) {
	shutdownSignals := make(chan os.Signal, 1)
	signal.Notify(shutdownSignals, unix.SIGINT, unix.SIGTERM, unix.SIGABRT)

	writeProfileSignal := make(chan os.Signal, 1)
	signal.Notify(writeProfileSignal, unix.SIGUSR1)

	select {
	case <-ctx.Done():
		os.Exit(1)
	case <-writeProfileSignal:
		log.Info("Received SIGUSR1...")

		stopProfiling()
		shutdownOnOSSignal(server, ctx, func() {})
	case <-shutdownSignals:
		log.Info("Received SIGINT, shutting down...")

		defer stopProfiling()
		gracefulCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), gracefulShutdownWait)
		defer cancel()
		if err := server.Shutdown(gracefulCtx); err != nil {
			log.WithError(err).Warn("error shutting server down")
		}
	}
}

func main() {
	if err := config.InitConfig(); err != nil {
		log.WithError(err).Warn("Could not initialize configuration")
	}
	logging.InitializeLogging(config.Config.Logger.Level, config.Config.Logger.Formatter)
	initSentry(&config.Config.Sentry, config.Config.Profiling.CPUEnabled)

	cancelInflux := monitoring.InitializeInfluxDB(&config.Config.InfluxDB)
	defer cancelInflux()

	stopProfiling := initProfiling(config.Config.Profiling)

	ctx, cancel := context.WithCancel(context.Background())
	router := initRouter(ctx)
	server := initServer(router)
	go runServer(router, server, cancel)
	shutdownOnOSSignal(server, ctx, stopProfiling)
}
