package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	redisv9 "github.com/redis/go-redis/v9"
	lua "github.com/yuin/gopher-lua"
	"github.com/spf13/cobra"

	"github.com/oriys/shardvm/internal/auth"
	"github.com/oriys/shardvm/internal/cache"
	"github.com/oriys/shardvm/internal/capability/cardtable"
	"github.com/oriys/shardvm/internal/capability/fstable"
	"github.com/oriys/shardvm/internal/capability/httptable"
	"github.com/oriys/shardvm/internal/capability/nettable"
	"github.com/oriys/shardvm/internal/capability/ostable"
	"github.com/oriys/shardvm/internal/capability/strtable"
	"github.com/oriys/shardvm/internal/cardsvc"
	"github.com/oriys/shardvm/internal/circuitbreaker"
	"github.com/oriys/shardvm/internal/config"
	"github.com/oriys/shardvm/internal/gameloop"
	shardvmgrpc "github.com/oriys/shardvm/internal/grpc"
	"github.com/oriys/shardvm/internal/logging"
	"github.com/oriys/shardvm/internal/mailbox"
	"github.com/oriys/shardvm/internal/metrics"
	"github.com/oriys/shardvm/internal/netfabric"
	"github.com/oriys/shardvm/internal/observability"
	"github.com/oriys/shardvm/internal/scriptengine"
	"github.com/oriys/shardvm/internal/store"
	"github.com/oriys/shardvm/internal/tickctx"
	"github.com/oriys/shardvm/internal/vmos"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "shardvm-cluster",
		Short: "shardvm-cluster runs the tick-engine game loop and its gRPC frontend",
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a JSON config file (optional, env overrides apply on top)")
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var devMode bool
	var httpAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game loop, gRPC frontend and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				loaded, err := config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			config.LoadFromEnv(cfg)

			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			if cfg.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Metrics.Namespace, nil)
			}
			observability.Init(cfg.Tracing.Enabled, cfg.Tracing.ServiceName)

			logging.Default().SetConsole(false)
			if cfg.Logging.RequestLogPath != "" {
				if err := logging.Default().SetOutput(cfg.Logging.RequestLogPath); err != nil {
					return fmt.Errorf("open request log: %w", err)
				}
			}
			if cfg.Logging.OutputDir != "" {
				retentionS := int(cfg.Logging.OutputRetention / time.Second)
				if err := logging.InitOutputStore(cfg.Logging.OutputDir, cfg.Logging.OutputMaxBytes, retentionS); err != nil {
					return fmt.Errorf("init output store: %w", err)
				}
			}

			return run(cfg, devMode, httpAddr)
		},
	}
	cmd.Flags().BoolVar(&devMode, "dev", false, "allow the built-in dev JWT secret when JWT_SECRET is unset")
	cmd.Flags().StringVar(&httpAddr, "http", ":9091", "address for the metrics/health HTTP endpoint")
	return cmd
}

func run(cfg *config.Config, devMode bool, httpAddr string) error {
	ctx := context.Background()

	pgStore, err := store.NewPostgresStore(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer pgStore.Close()

	var hotCache cache.Cache = cache.NewInMemoryCache()
	if cfg.Net.CrossHostBusURL != "" {
		opt, err := redisv9.ParseURL(cfg.Net.CrossHostBusURL)
		if err != nil {
			return fmt.Errorf("parse cache redis url: %w", err)
		}
		redisClient := redisv9.NewClient(opt)
		l2 := cache.NewRedisCacheFromClient(redisClient, "shardvm:cache:")
		tiered := cache.NewTieredCache(hotCache, l2, 30*time.Second)
		hotCache = tiered

		invalidator := cache.NewCacheInvalidator(tiered, redisClient)
		invCtx, invCancel := context.WithCancel(ctx)
		go invalidator.Start(invCtx)
		defer invCancel()
	}
	cachedStore := store.NewCachingStore(pgStore, hotCache, 30*time.Second)

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenLifetime, devMode)
	if err != nil {
		return fmt.Errorf("build auth issuer: %w", err)
	}

	fsAdapter := store.NewFSAdapter(cachedStore)
	cardSvc := cardsvc.NewService()

	var sink netfabric.Sink
	if cfg.Net.CrossHostBusURL != "" {
		opt, err := redis.ParseURL(cfg.Net.CrossHostBusURL)
		if err != nil {
			return fmt.Errorf("parse cross-host bus url: %w", err)
		}
		redisSink := netfabric.NewRedisSink(redis.NewClient(opt), cfg.Net.Subnet)
		sink = netfabric.NewBreakingSink(redisSink, circuitbreaker.Config{
			ErrorPct:       50,
			WindowDuration: 10 * time.Second,
			OpenDuration:   5 * time.Second,
			HalfOpenProbes: 1,
		})
	}
	router := netfabric.NewRouter(sink)

	conns := gameloop.NewNetConnector(netfabric.NewDNSResolver(), router, cfg.Net.EphemeralPortStart, cfg.Net.EphemeralPortEnd)

	holder := tickctx.NewHolder()
	engine := scriptengine.New(time.Duration(cfg.Engine.QuantumMillis)*time.Millisecond, func(L *lua.LState) {
		fstable.Register(L, holder, fsAdapter)
		ostable.Register(L, holder)
		nettable.Register(L, holder, conns)
		httptable.Register(L)
		strtable.Register(L)
		cardtable.Register(L, cardSvc)
	})

	realizer := &gameloop.BinRealizer{Store: fsAdapter}
	loop := gameloop.New(engine, holder, router, realizer, conns, logging.Op())

	// The tick goroutine must already be running before loadVMs, since
	// Loop.Spawn blocks until a tick drains its request off the queue.
	stop := make(chan struct{})
	go loop.Run(stop, cfg.Daemon.TickInterval)

	if err := loadVMs(ctx, cachedStore, loop); err != nil {
		close(stop)
		return fmt.Errorf("load vms: %w", err)
	}

	mailHub := mailbox.NewHub()
	grpcServer := shardvmgrpc.NewServer(issuer, loop, cachedStore, mailHub)
	if err := grpcServer.Start(cfg.Daemon.GRPCAddr); err != nil {
		return fmt.Errorf("start grpc server: %w", err)
	}
	defer grpcServer.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics/json", metrics.Global().JSONHandler())
	mux.Handle("/metrics/timeseries", metrics.Global().TimeSeriesHandler())
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", metrics.PrometheusHandler())
	}
	httpServer := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("http server error", "error", err)
		}
	}()
	defer httpServer.Shutdown(ctx)

	logging.Op().Info("shardvm cluster node started",
		"grpc_addr", cfg.Daemon.GRPCAddr, "http_addr", httpAddr, "tick_interval", cfg.Daemon.TickInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	close(stop)

	if err := observability.Shutdown(ctx); err != nil {
		logging.Op().Warn("tracer shutdown error", "error", err)
	}

	logging.Op().Info("shardvm cluster node shutting down")
	return nil
}

// loadVMs recreates every persisted VM's in-memory shell: a NIC bound
// to its recorded IP, registered with the loop, with its init process
// (PID 1, the sh binary) spawned fresh — process state itself is never
// durable, only the VM's identity and filesystem are.
func loadVMs(ctx context.Context, st store.Store, loop *gameloop.Loop) error {
	records, err := st.ListVMs(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		nic := &netfabric.NIC{IP: rec.IP, Subnet: rec.Subnet}
		vm := vmos.NewVM(rec.ID, rec.Hostname, nic)
		loop.AddVM(vm)
		if _, err := loop.Spawn(rec.ID, 0, "root", "sh", nil); err != nil {
			logging.Op().Warn("failed to spawn init process", "vm", rec.ID, "error", err)
		}
	}
	return nil
}
