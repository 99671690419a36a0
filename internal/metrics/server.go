package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPath is used when no metrics path is configured.
	DefaultPath = "/metrics"

	shutdownTimeout = 5 * time.Second
)

// Handler returns the mux serving the default registry under path and a liveness probe under /health.
func Handler(path string) http.Handler {
	if path == "" {
		path = DefaultPath
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return mux
}

// Serve listens on listen until ctx is canceled.
// The listener is bound before Serve returns, so an address in use is reported to the caller.
func Serve(ctx context.Context, listen, path string) (net.Addr, <-chan error, error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, nil, err
	}

	server := &http.Server{
		Handler:           Handler(path),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	done := make(chan error, 1)

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}()

	go func() {
		defer close(done)

		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
			done <- err
		}
	}()

	log.Info().Str("addr", ln.Addr().String()).Str("path", path).Msg("metrics endpoint online")

	return ln.Addr(), done, nil
}
