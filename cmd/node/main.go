// Command node runs a prover node process: task cache, claim & admit
// endpoint, proving dispatcher (HTTP and binary RPC surfaces), result
// forwarding, and the periodic heartbeat back to the hub.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/zkprover/controlplane/internal/admit"
	"github.com/zkprover/controlplane/internal/config"
	"github.com/zkprover/controlplane/internal/cryptoenvelope"
	"github.com/zkprover/controlplane/internal/heartbeat"
	"github.com/zkprover/controlplane/internal/httpmw"
	"github.com/zkprover/controlplane/internal/identity"
	"github.com/zkprover/controlplane/internal/nodehttp"
	"github.com/zkprover/controlplane/internal/proving"
	"github.com/zkprover/controlplane/internal/respenvelope"
	"github.com/zkprover/controlplane/internal/resultforward"
	"github.com/zkprover/controlplane/internal/rpcpool"
	"github.com/zkprover/controlplane/internal/rpcserver"
	"github.com/zkprover/controlplane/internal/taskcache"
	"github.com/zkprover/controlplane/pb"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("node: no .env file found, continuing with process environment")
	}

	cfg := config.Get()

	cryptoKeys := cryptoenvelope.NewKeyCache(cfg.Keys.CryptoPrivatePath, cfg.Keys.CryptoPublicPath)
	if _, err := cryptoKeys.Get(); err != nil {
		slog.Warn("node: crypto key pair not loadable at startup, will retry lazily", "error", err)
	}
	hubSessionKeys := cryptoenvelope.NewKeyCache("", cfg.Keys.SessionPublicPath)

	cache, err := taskcache.New(cfg.Cache.Path,
		taskcache.WithDefaultTTL(time.Duration(cfg.Cache.DefaultTTLSec)*time.Second),
		taskcache.WithFlushInterval(time.Duration(cfg.Cache.FlushIntervalSec)*time.Second),
	)
	if err != nil {
		log.Fatalf("node: task cache load failed: %v", err)
	}
	cache.Start()
	defer cache.Stop()

	admitHandler := admit.NewHandler(hubSessionKeys, cache)
	admitHandler.TTLSec = cfg.Cache.DefaultTTLSec

	validators := proving.NewValidatorRegistry()
	var spiffeValidator *identity.SPIFFEValidator
	if cfg.Proving.SPIFFESocketPath != "" {
		v, err := identity.NewSPIFFEValidator(cfg.Proving.SPIFFESocketPath)
		if err != nil {
			slog.Warn("node: SPIFFE verifier not available, using structural validation fallback", "error", err)
			validators.BindOAuthProvider("default", identity.NewFallbackValidator())
		} else {
			spiffeValidator = v
			defer spiffeValidator.Close()
			validators.BindOAuthProvider("default", spiffeValidator)
			slog.Info("node: SPIFFE validator wired for ZKLOGIN")
		}
	} else {
		validators.BindOAuthProvider("default", identity.NewFallbackValidator())
	}
	loadProviderBindings(cfg.Proving.ProviderResolverPath, validators, spiffeValidator)

	poolRegistry := rpcpool.NewRegistry(
		rpcpool.WithMaxConnections(cfg.RPCPool.MaxConnections),
		rpcpool.WithKeepalive(
			time.Duration(cfg.RPCPool.KeepaliveSec)*time.Second,
			time.Duration(cfg.RPCPool.KeepaliveTimeoutSec)*time.Second,
		),
		rpcpool.WithMaxMessageBytes(cfg.RPCPool.MaxMessageBytes),
	)
	defer poolRegistry.CloseAll()

	backends := map[proving.ProverID]proving.ProvingBackend{}
	for id, addr := range cfg.Proving.BackendAddrs {
		pool := poolRegistry.Get(addr)
		backend := proving.NewPooledBackend(pool)
		backend.Deadline = time.Duration(cfg.Proving.RPCTimeoutSec) * time.Second
		backend.MaxRetries = cfg.Proving.RPCMaxRetries
		backends[proving.ProverID(id)] = backend
		slog.Info("node: proving backend wired", "prover_id", id, "addr", addr)
	}
	backendRegistry := proving.NewBackendRegistry(backends)

	forwarder := resultforward.NewForwarder(cfg.Hub.APIURL, hubSessionKeys)

	dispatcher := proving.NewDispatcher(cryptoKeys, validators, backendRegistry)
	dispatcher.Forwarder = forwarder
	loadProjectMap(cfg.Proving.ProjectMapPath, dispatcher)

	httpHandlers := nodehttp.New(dispatcher, cryptoKeys, forwarder)

	hb := heartbeat.NewLoop(cfg.Hub.APIURL, localAddr(cfg.Server.Interface, cfg.Server.RPCPort), localAddr(cfg.Server.Interface, cfg.Server.HTTPPort), hubSessionKeys)
	hb.Interval = time.Duration(cfg.Heartbeat.IntervalSec) * time.Second
	hb.Start()
	defer hb.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/ping", httpHandlers.Ping).Methods(http.MethodGet)
	router.Handle("/push_task", admitHandler).Methods(http.MethodPost)
	router.HandleFunc("/prove", httpHandlers.Prove).Methods(http.MethodPost)
	router.HandleFunc("/prove_nosha256", httpHandlers.Prove).Methods(http.MethodPost)
	router.HandleFunc("/prove_nosha256_with_witness", httpHandlers.Prove).Methods(http.MethodPost)
	router.HandleFunc("/prove_nosha256_offchain", httpHandlers.Prove).Methods(http.MethodPost)
	router.HandleFunc("/api/v2/prove", httpHandlers.Prove).Methods(http.MethodPost)
	router.HandleFunc("/public_key", httpHandlers.GetPublicKey).Methods(http.MethodGet)
	router.HandleFunc("/verifier", httpHandlers.UpdateVerifier).Methods(http.MethodPut)
	router.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.Use(httpmw.MakeCORSMiddleware(httpmw.CORSConfig{AllowOrigins: []string{"*"}}))
	router.Use(httpmw.LoggingMiddleware)

	httpServer := &http.Server{
		Addr:         cfg.Server.Interface + ":" + cfg.Server.HTTPPort,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	rpcServer := grpc.NewServer()
	pb.RegisterProverServiceServer(rpcServer, rpcserver.NewServer(dispatcher, cryptoKeys, forwarder))

	rpcListener, err := net.Listen("tcp", cfg.Server.Interface+":"+cfg.Server.RPCPort)
	if err != nil {
		log.Fatalf("node: rpc listen failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("node: shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("node: http server shutdown error", "error", err)
		}
		rpcServer.GracefulStop()
	}()

	go func() {
		slog.Info("node: rpc server starting", "addr", rpcListener.Addr().String())
		if err := rpcServer.Serve(rpcListener); err != nil {
			slog.Error("node: rpc server stopped", "error", err)
		}
	}()

	slog.Info("node: http server starting", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("node: http server failed: %v", err)
	}
	slog.Info("node: stopped")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(respenvelope.OK("ok", nil))
}

func localAddr(iface, port string) string {
	host := iface
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return host + ":" + port
}

// loadProjectMap reads the optional witness-tag -> project JSON map from
// disk. A missing file just leaves the dispatcher's map empty; dispatcher
// results then carry no project/verifiers and are never forwarded.
func loadProjectMap(path string, d *proving.Dispatcher) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("node: project map not loaded", "path", path, "error", err)
		return
	}
	var entries map[string]proving.ProjectEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		slog.Warn("node: project map malformed", "path", path, "error", err)
		return
	}
	d.ProjectMap = entries
	slog.Info("node: project map loaded", "path", path, "entries", len(entries))
}

// loadProviderBindings reads an optional list of OAuth provider names that
// should resolve to the shared SPIFFE validator (or its structural fallback
// when no agent is reachable) rather than the "default" binding alone.
func loadProviderBindings(path string, validators *proving.ValidatorRegistry, spiffeValidator *identity.SPIFFEValidator) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("node: provider resolver map not loaded", "path", path, "error", err)
		return
	}
	var providers []string
	if err := json.Unmarshal(data, &providers); err != nil {
		slog.Warn("node: provider resolver map malformed", "path", path, "error", err)
		return
	}
	for _, p := range providers {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if spiffeValidator != nil {
			validators.BindOAuthProvider(p, spiffeValidator)
		} else {
			validators.BindOAuthProvider(p, identity.NewFallbackValidator())
		}
	}
	slog.Info("node: oauth provider bindings loaded", "path", path, "count", len(providers))
}
