package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"tabml/internal/cfg"
	"tabml/internal/logging"
	"tabml/internal/prediction"
	"tabml/internal/server"
)

func runServe(c cfg.Settings, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.Int("port", c.ServerPort, "HTTP port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer store.Close()

	observer := newObserver()
	predictor := prediction.NewWithDropColumns(logging.Component("predictor"), observer, c.DropColumns)

	ms, err := server.New(store, predictor, observer, logging.Component("server"), server.Options{
		Port:           *port,
		CacheSize:      c.ModelCacheSize,
		RequestTimeout: c.RequestTimeout,
		MaxBatchRows:   c.MaxBatchRows,
		Gatherer:       prometheus.DefaultGatherer,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		if err := ms.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	log.Info().Msg("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ms.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return err
	}
	return <-errCh
}
