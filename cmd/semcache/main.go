package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/semcache/semcache"
	"github.com/semcache/semcache/policystore"
	"github.com/semcache/semcache/rfc7234"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// CLI flags
	portFlag           int
	originFlag         string
	hostFlag           string
	configFilenameFlag string
	providerFlag       string
	dbFilenameFlag     string
	privateFlag        bool
	purgeIntervalFlag  time.Duration
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func init() {
	flag.StringVar(&originFlag, "origin", "", "Origin URL to proxy to (overrides config)")
	flag.StringVar(&hostFlag, "host", "", "Hostname of origin")
	flag.IntVar(&portFlag, "port", 8080, "Port to listen on")
	flag.StringVar(&configFilenameFlag, "config", "", "Path to config file")
	flag.StringVar(&providerFlag, "provider", "sqlite", "Store provider to use (sqlite, leveldb or memory)")
	flag.StringVar(&dbFilenameFlag, "db", "cache.db", "Store DB file or directory name")
	flag.BoolVar(&privateFlag, "private", false, "Behave as a private (single-user) cache")
	flag.DurationVar(&purgeIntervalFlag, "purge-interval", time.Minute, "Expired entry purge interval (0 to disable)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", "", "Log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func main() {
	flag.Parse()

	// set log level
	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFilenameFlag != "" {
		if logFileOutput, err := os.OpenFile(logFilenameFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()

	port := portFlag
	origin := originFlag
	originHost := hostFlag
	provider := providerFlag
	dbPath := dbFilenameFlag
	opt := rfc7234.DefaultOptions()
	opt.Shared = !privateFlag

	if configFilenameFlag != "" {
		config, err := semcache.LoadConfig(configFilenameFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not read config file")
		}
		if len(config.Origins) != 1 {
			log.Fatal().Msg("Need exactly one origin")
		}
		originConfig := config.Origins[0]
		if origin == "" {
			origin = originConfig.Origin
		}
		if originHost == "" {
			originHost = originConfig.Host
		}
		if config.Port > 0 {
			port = config.Port
		}
		if config.Provider != "" {
			provider = config.Provider
		}
		if config.DBPath != "" {
			dbPath = config.DBPath
		}
		opt, err = originConfig.EngineOptions()
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid engine options")
		}
	}

	if origin == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	var store policystore.Store
	switch provider {
	case "sqlite":
		store = policystore.NewSQLiteStore(dbPath)
	case "leveldb":
		ldb, err := policystore.NewLevelDBStore(dbPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Could not open leveldb store")
		}
		defer ldb.Close()
		store = ldb
	case "memory":
		store = policystore.NewMemoryStore()
	default:
		log.Fatal().Msgf("Unsupported store provider: %s", provider)
	}

	cache := semcache.New(semcache.Config{
		Store:         store,
		OriginURL:     *originURL,
		OriginHost:    originHost,
		Options:       &opt,
		PurgeInterval: purgeIntervalFlag,
	})

	router := chi.NewRouter()
	router.Handle("/*", cache)

	log.Info().Msgf("Proxying port %v to %s (with hostname '%s')", port, originURL.String(), originHost)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), router); err != nil {
		panic(err)
	}
}
