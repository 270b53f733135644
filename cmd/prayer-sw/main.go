package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	prayersw "github.com/brandonadamprice/prayer-sw"
	"github.com/brandonadamprice/prayer-sw/cache"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

// environment holds operational knobs that can be set without flags.
// Flags take precedence (their defaults come from here).
type environment struct {
	Port       int    `env:"PORT" envDefault:"8080"`
	Origin     string `env:"ORIGIN_URL"`
	ConfigFile string `env:"WORKER_CONFIG" envDefault:"worker.yaml"`
	DBFile     string `env:"CACHE_DB" envDefault:"cache.db"`
	LogFile    string `env:"LOG_FILE"`
}

var (
	// CLI flags
	portFlag           int
	originFlag         string
	configFilenameFlag string
	dbFilenameFlag     string
	verbosityTraceFlag bool
	logFilenameFlag    string

	// this is set by goreleaser
	version string
)

func main() {
	var envCfg environment
	if err := env.Parse(&envCfg); err != nil {
		log.Fatal().Err(err).Msg("Cannot parse environment")
	}

	flag.IntVar(&portFlag, "port", envCfg.Port, "Port to listen on")
	flag.StringVar(&originFlag, "origin", envCfg.Origin, "Origin URL to serve and cache")
	flag.StringVar(&configFilenameFlag, "config", envCfg.ConfigFile, "Path to worker config file")
	flag.StringVar(&dbFilenameFlag, "db", envCfg.DBFile, "Cache DB file name (use 'memory' for in-memory db)")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
	flag.StringVar(&logFilenameFlag, "log-file", envCfg.LogFile, "Log file to use (in addition to stdout)")
	flag.Parse()

	if version == "" {
		version = "DEV"
	}

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

	if originFlag == "" {
		log.Fatal().Msg("Please specify origin")
	}
	originURL, err := url.Parse(originFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Could not parse origin url")
	}

	fileConfig, err := prayersw.LoadConfig(configFilenameFlag)
	if err != nil {
		log.Fatal().Err(err).Str("config", configFilenameFlag).Msg("Cannot load worker config")
	}

	// set up sqlite provider
	dbFilename := dbFilenameFlag
	if dbFilename == "memory" {
		dbFilename = ""
	}

	workerConfig := prayersw.Config{
		OriginURL: *originURL,
		Storage:   cache.NewSQLiteCache(dbFilename),
		Notifier:  logNotifier{},
		Logger:    &log.Logger,
	}
	fileConfig.Apply(&workerConfig)

	worker, err := prayersw.New(workerConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot create worker")
	}

	installCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := worker.Install(installCtx); err != nil {
		log.Fatal().Err(err).Msg("Install failed")
	}
	if err := worker.Activate(installCtx); err != nil {
		log.Fatal().Err(err).Msg("Activate failed")
	}

	r := chi.NewRouter()
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.RequestIDHandler("reqId", "Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Int("status", status).
			Dur("duration", duration).
			Msg("Sending response to client")
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Post("/push", func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Could not read payload", http.StatusBadRequest)
			return
		}
		if err := worker.HandlePush(r.Context(), payload); err != nil {
			http.Error(w, "Could not handle push", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/*", worker)

	log.Info().
		Int("port", portFlag).
		Str("origin", originURL.String()).
		Str("bucket", worker.Bucket()).
		Msg("Worker serving")
	if err := http.ListenAndServe(fmt.Sprintf(":%d", portFlag), r); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

// logNotifier writes notifications to the log; the binary has no real
// notification surface.
type logNotifier struct{}

func (logNotifier) Show(ctx context.Context, n prayersw.Notification) error {
	log.Info().
		Str("id", n.ID).
		Str("title", n.Title).
		Str("body", n.Body).
		Str("url", n.URL).
		Msg("Notification")
	return nil
}

func (logNotifier) Close(ctx context.Context, id string) error {
	log.Debug().Str("id", id).Msg("Notification closed")
	return nil
}
