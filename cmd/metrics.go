package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/smartdl/internal/metrics"
)

// startMetrics serves a fresh registry on addr. An empty addr disables
// metrics and returns a nil collector.
func startMetrics(addr string) (*metrics.Collector, func(), error) {
	if addr == "" {
		return nil, func() {}, nil
	}
	reg := prometheus.NewRegistry()
	collector, err := metrics.New("smartdl", reg)
	if err != nil {
		return nil, nil, err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("op", "cmd/metrics").Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("op", "cmd/metrics").Msgf("serving metrics on %s/metrics", listener.Addr())

	stopped := false
	return collector, func() {
		if stopped {
			return
		}
		stopped = true
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}, nil
}
