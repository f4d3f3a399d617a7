package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/getsentry/stackmerge/internal/envutil"
	"github.com/getsentry/stackmerge/internal/httputil"
	"github.com/getsentry/stackmerge/internal/logutil"
	"github.com/getsentry/stackmerge/internal/storageprovider"
	"github.com/getsentry/stackmerge/internal/storageutil"
)

type environment struct {
	config ServiceConfig

	listingsWriter *kafka.Writer

	bucket  *storageprovider.Bucket
	storage storageutil.ObjectHandler
}

var release string

func newEnvironment() (*environment, error) {
	var e environment
	var err error
	e.config, err = loadServiceConfig(envutil.Environment())
	if err != nil {
		return nil, err
	}
	if e.config.ListingsBucket != "" {
		e.bucket, err = storageprovider.OpenBucket(context.Background(), e.config.ListingsBucket)
		if err != nil {
			return nil, err
		}
		e.storage = e.bucket
	}
	if len(e.config.ListingsKafkaBrokers) > 0 {
		e.listingsWriter = &kafka.Writer{
			Addr:         kafka.TCP(e.config.ListingsKafkaBrokers...),
			Async:        true,
			Balancer:     kafka.CRC32Balancer{},
			BatchSize:    10,
			Compression:  kafka.Lz4,
			ReadTimeout:  3 * time.Second,
			Topic:        e.config.ListingsKafkaTopic,
			WriteTimeout: 3 * time.Second,
		}
	}
	return &e, nil
}

func (e *environment) shutdown() {
	if e.bucket != nil {
		if err := e.bucket.Close(); err != nil {
			sentry.CaptureException(err)
		}
	}
	if e.listingsWriter != nil {
		if err := e.listingsWriter.Close(); err != nil {
			sentry.CaptureException(err)
		}
	}
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodGet, "/health", e.getHealth},
		{http.MethodPost, "/merge", e.postMerge},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.DecompressPayload(route.handler)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

func main() {
	env, err := newEnvironment()
	if err != nil {
		logutil.ConfigureLogger("info")
		log.Fatal().Err(err).Msg("error setting up environment")
	}
	logutil.ConfigureLogger(env.config.LogLevel)

	err = sentry.Init(sentry.ClientOptions{
		BeforeSend:       httputil.SetHTTPStatusCodeTag,
		Dsn:              env.config.SentryDSN,
		EnableTracing:    true,
		Environment:      env.config.Environment,
		Release:          release,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("can't initialize sentry")
	}

	router, err := env.newRouter()
	if err != nil {
		sentry.CaptureException(err)
		log.Fatal().Err(err).Msg("error setting up the router")
	}

	server := http.Server{
		Addr:    ":" + envutil.GetPort("8080"),
		Handler: sentryhttp.New(sentryhttp.Options{}).Handle(router),
	}

	waitForShutdown := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	log.Info().Str("addr", server.Addr).Msg("listening")
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
	}

	<-waitForShutdown

	// Shutdown the rest of the environment after the HTTP connections are closed
	env.shutdown()
}

func (e *environment) getHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
