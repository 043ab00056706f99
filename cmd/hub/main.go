// Command hub runs the control-plane hub process: node registry, dispatch
// engine, registration endpoint, and result/verifier relay to Explorer.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zkprover/controlplane/internal/config"
	"github.com/zkprover/controlplane/internal/cryptoenvelope"
	"github.com/zkprover/controlplane/internal/dispatch"
	"github.com/zkprover/controlplane/internal/httpmw"
	"github.com/zkprover/controlplane/internal/metrics"
	"github.com/zkprover/controlplane/internal/registry"
	"github.com/zkprover/controlplane/internal/respenvelope"
	"github.com/zkprover/controlplane/internal/sweeper"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("hub: no .env file found, continuing with process environment")
	}

	cfg := config.Get()
	m := metrics.New()

	sessionKeys := cryptoenvelope.NewKeyCache(cfg.Keys.SessionPrivatePath, cfg.Keys.SessionPublicPath)
	if _, err := sessionKeys.Get(); err != nil {
		slog.Warn("hub: session key pair not loadable at startup, will retry lazily", "error", err)
	}

	nodeRegistry := registry.New()
	nodeRegistry.SetInactivityTimeout(time.Duration(cfg.Registry.InactivityTimeoutSec) * time.Second)

	if cfg.Redis.Enabled {
		mirror, err := registry.NewRedisMirror(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			slog.Warn("hub: redis mirror unavailable, registry stays in-memory only", "error", err)
		} else {
			nodeRegistry.SetMirror(mirror)
			defer mirror.Close()
			slog.Info("hub: redis mirror wired into node registry")
		}
	}

	engine := dispatch.NewEngine(nodeRegistry, sessionKeys, m)
	engine.MaxSampleAttempts = cfg.Dispatch.MaxSampleAttempts
	engine.RetrySleep = time.Duration(cfg.Dispatch.RetrySleepMs) * time.Millisecond
	engine.SampleSize = cfg.Registry.SampleSize
	engine.Liveness.Timeout = time.Duration(cfg.Dispatch.LivenessTimeoutSec) * time.Second

	var relay *dispatch.Relay
	if cfg.Explorer.APIURL != "" {
		explorerEnv, err := cryptoenvelope.LoadEnvelope("", cfg.Explorer.PublicKeyPath)
		if err != nil {
			slog.Warn("hub: explorer public key not loadable, result/verifier relay disabled", "error", err)
		} else {
			relay = dispatch.NewRelay(sessionKeys, cfg.Explorer.APIURL, explorerEnv)
			slog.Info("hub: explorer relay wired", "explorer_url", cfg.Explorer.APIURL)
		}
	}

	sched := sweeper.New()
	sched.Register("update_node_list", time.Duration(cfg.Registry.SweepIntervalSec)*time.Second, func() {
		nodeRegistry.SetInactivityTimeout(60 * time.Second)
		removed := nodeRegistry.Sweep()
		m.RegistrySize.Set(float64(nodeRegistry.Len()))
		if removed > 0 {
			m.RegistrySwept.Add(float64(removed))
		}
	})
	sched.Start()

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1/hub").Subrouter()
	api.HandleFunc("/node", engine.HandleGetNode).Methods(http.MethodGet)
	api.HandleFunc("/node", engine.HandleRegisterNode).Methods(http.MethodPost)
	if relay != nil {
		api.HandleFunc("/result", relay.HandleResult).Methods(http.MethodPost)
		api.HandleFunc("/verifier", relay.HandleUpdateVerifier).Methods(http.MethodPut)
	}

	router.HandleFunc("/admin/nodes", handleAdminNodes(nodeRegistry)).Methods(http.MethodGet)
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.Use(httpmw.MakeCORSMiddleware(httpmw.CORSConfig{AllowOrigins: []string{"*"}}))
	router.Use(httpmw.LoggingMiddleware)

	server := &http.Server{
		Addr:         cfg.Server.Interface + ":" + cfg.Server.HTTPPort,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("hub: shutdown signal received")

		sched.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("hub: server shutdown error", "error", err)
		}
	}()

	slog.Info("hub: starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("hub: server failed: %v", err)
	}
	slog.Info("hub: stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(respenvelope.OK("ok", nil))
}

func handleAdminNodes(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(respenvelope.OK("Successfully", reg.Snapshot()))
	}
}
