package config

import (
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/rebuild-dev/rebuild-server/pkg/dto"
	"github.com/rebuild-dev/rebuild-server/pkg/logging"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config contains the default configuration of the Rebuild mock server.
var (
	Config = &configuration{
		Server: server{
			Address: "0.0.0.0",
			Port:    8000,
			TLS: TLS{
				Active:   false,
				CertFile: "",
				KeyFile:  "",
			},
			CORS: CORS{
				AllowedOrigins: []string{"*"},
			},
			PageSize:                10,
			SystemdSocketActivation: false,
		},
		Auth: Auth{
			Secret:   "rebuild-mock-secret",
			TokenTTL: 86400,
		},
		Seed: Seed{
			Enabled: true,
			File:    "",
		},
		Logger: Logger{
			Level:     "INFO",
			Formatter: dto.FormatterText,
		},
		Sentry: sentry.ClientOptions{},
		InfluxDB: InfluxDB{
			URL:          "",
			Token:        "",
			Organization: "",
			Bucket:       "",
			Stage:        "",
		},
		Metrics: Metrics{
			Enabled: true,
			Path:    "/metrics",
		},
		Profiling: Profiling{
			CPUEnabled: false,
			CPUFile:    "rebuild-server.prof",
		},
	}
	configurationFilePath    = "./configuration.yaml"
	configurationInitialized = false
	log                      = logging.GetLogger("config")
	TLSConfig                = &tls.Config{
		MinVersion:       tls.VersionTLS13,
		CurvePreferences: []tls.CurveID{tls.CurveP521, tls.CurveP384, tls.CurveP256},
	}
	ErrConfigInitialized = errors.New("configuration is already initialized")
)

// server configures the webserver.
type server struct {
	Address string
	Port    int
	TLS     TLS
	CORS    CORS
	// PageSize is the default value of the _end list parameter.
	PageSize int `yaml:"pagesize"`
	// SystemdSocketActivation serves the listeners passed by systemd instead of opening one.
	SystemdSocketActivation bool `yaml:"systemdsocketactivation"`
}

// URL returns the URL of the webserver.
func (s *server) URL() *url.URL {
	return parseURL(s.Address, s.Port, s.TLS.Active)
}

// TLS configures TLS on a connection.
type TLS struct {
	Active   bool
	CAFile   string `yaml:"cafile"`
	CertFile string `yaml:"certfile"`
	KeyFile  string `yaml:"keyfile"`
}

// CORS configures the cross-origin requests of the frontend.
type CORS struct {
	AllowedOrigins []string `yaml:"allowedorigins"`
}

// Auth configures the mock access tokens.
type Auth struct {
	Secret string
	// TokenTTL is the lifetime of an access token in seconds.
	TokenTTL int `yaml:"tokenttl"`
}

// Seed configures the initial data.
type Seed struct {
	Enabled bool
	// File is an optional YAML file replacing the built-in seed data.
	File string
}

// Logger configures the used logger.
type Logger struct {
	Formatter dto.Formatter
	Level     string
}

// InfluxDB configures the usage of an Influx db monitoring.
type InfluxDB struct {
	URL          string
	Token        string
	Organization string
	Bucket       string
	Stage        string
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	Enabled bool
	Path    string
}

// Profiling configures the CPU profiler.
type Profiling struct {
	CPUEnabled bool   `yaml:"cpuenabled"`
	CPUFile    string `yaml:"cpufile"`
}

// configuration contains the complete configuration of the server.
type configuration struct {
	Server    server
	Auth      Auth
	Seed      Seed
	Logger    Logger
	Sentry    sentry.ClientOptions
	InfluxDB  InfluxDB
	Metrics   Metrics
	Profiling Profiling
}

// InitConfig merges configuration options from environment variables and
// a configuration file into the default configuration. Calls of InitConfig
// after the first call have no effect and return an error. InitConfig
// should be called directly after starting the program.
func InitConfig() error {
	if configurationInitialized {
		return ErrConfigInitialized
	}
	configurationInitialized = true
	content := readConfigFile()
	Config.mergeYaml(content)
	Config.mergeEnvironmentVariables()
	return nil
}

func parseURL(address string, port int, tlsEnabled bool) *url.URL {
	scheme := "http"
	if tlsEnabled {
		scheme = "https"
	}
	return &url.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", address, port),
	}
}

func readConfigFile() []byte {
	parseFlags()
	data, err := os.ReadFile(configurationFilePath)
	if err != nil {
		log.WithError(err).Info("Using default configuration...")
		return nil
	}
	return data
}

func parseFlags() {
	if flag.Lookup("config") == nil {
		flag.StringVar(&configurationFilePath, "config", configurationFilePath, "path of the yaml config file")
	}
	flag.Parse()
}

func (c *configuration) mergeYaml(content []byte) {
	if err := yaml.Unmarshal(content, c); err != nil {
		log.WithError(err).Fatal("Could not parse configuration file")
	}
}

func (c *configuration) mergeEnvironmentVariables() {
	readFromEnvironment("REBUILD", reflect.ValueOf(c).Elem())
}

func readFromEnvironment(prefix string, value reflect.Value) {
	logEntry := log.WithField("prefix", prefix)
	// if value was not derived from a pointer, it is not possible to alter its contents
	if !value.CanSet() {
		logEntry.Warn("Cannot overwrite struct field that can not be set")
		return
	}

	if value.Kind() != reflect.Struct {
		loadValue(prefix, value, logEntry)
	} else {
		for i := 0; i < value.NumField(); i++ {
			fieldName := value.Type().Field(i).Name
			newPrefix := fmt.Sprintf("%s_%s", prefix, strings.ToUpper(fieldName))
			readFromEnvironment(newPrefix, value.Field(i))
		}
	}
}

func loadValue(prefix string, value reflect.Value, logEntry *logrus.Entry) {
	content, ok := os.LookupEnv(prefix)
	if !ok {
		return
	}
	logEntry = logEntry.WithField("content", content)

	switch value.Kind() {
	case reflect.String:
		value.SetString(content)
	case reflect.Int:
		integer, err := strconv.Atoi(content)
		if err != nil {
			logEntry.Warn("Could not parse environment variable as integer")
			return
		}
		value.SetInt(int64(integer))
	case reflect.Bool:
		boolean, err := strconv.ParseBool(content)
		if err != nil {
			logEntry.Warn("Could not parse environment variable as boolean")
			return
		}
		value.SetBool(boolean)
	case reflect.Slice:
		if len(content) > 0 && content[0] == '"' && content[len(content)-1] == '"' {
			content = content[1 : len(content)-1] // remove wrapping quotes
		}
		parts := strings.Fields(content)
		value.Set(reflect.ValueOf(parts))
	default:
		// ignore this field
		logEntry.WithField("type", value.Type().Name()).
			Warn("Setting configuration option via environment variables is not supported")
	}
}
