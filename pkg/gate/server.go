package gate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/tantalor/netlify-file-server/pkg/config"
)

// GateServer serves the protected files behind the compiled policy. It holds
// no mutable state: the policy is immutable once the binary is built, and
// every request is an isolated evaluation against it.
type GateServer struct {
	config config.Gate
	policy *Policy
}

func NewGateServer(conf config.Gate) *GateServer {
	return &GateServer{
		config: conf,
		policy: Embedded(),
	}
}

// NewGateServerWithPolicy pins an explicit policy instead of the embedded
// one. Tests use this; production always runs the embedded artifact.
func NewGateServerWithPolicy(conf config.Gate, policy *Policy) *GateServer {
	return &GateServer{
		config: conf,
		policy: policy,
	}
}

func (g *GateServer) CreateMux() *chi.Mux {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD"},
		AllowedHeaders: []string{apiKeyHeader, "Content-Type", "Accept"},
		MaxAge:         300,
	}))
	r.Use(PrometheusMiddleware)

	r.Get("/healthcheck", g.Healthcheck)
	r.Handle("/metrics", promhttp.Handler())

	files := chi.NewRouter()
	files.Use(g.AuthMiddleware)
	files.Handle("/*", http.FileServer(http.Dir(g.config.FilesDirectory)))

	r.Mount("/", files)

	return r
}

func (g *GateServer) Run(ctx context.Context) {
	log.Info().
		Int("port", g.config.Port).
		Str("policy_version", g.policy.Version()).
		Msg("Starting gate")

	server := &http.Server{
		Addr:    fmt.Sprintf("0.0.0.0:%d", g.config.Port),
		Handler: g.CreateMux(),
	}

	serverCtx, serverStopCtx := context.WithCancel(context.Background())

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Err(err).Msg("Error serving gate")
			serverStopCtx()
		}
	}()

	go func() {
		<-ctx.Done()

		log.Debug().Msg("Stopping gate")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down gate")
		}
		cancel()

		serverStopCtx()
	}()

	<-serverCtx.Done()

	log.Debug().Msg("Gate stopped")
}
