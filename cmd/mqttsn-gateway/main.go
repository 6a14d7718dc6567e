// Command mqttsn-gateway runs the MQTT-SN broker/gateway as a standalone
// UDP server: load configuration, open the session/retained stores, bind
// the socket, and serve ingress until an interrupt signal requests a
// graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/axmq/mqttsn/config"
	"github.com/axmq/mqttsn/dispatcher"
	"github.com/axmq/mqttsn/hook"
	"github.com/axmq/mqttsn/pkg/logger"
	"github.com/axmq/mqttsn/pkg/metrics"
	"github.com/axmq/mqttsn/retained"
	"github.com/axmq/mqttsn/session"
	"github.com/axmq/mqttsn/store"
	"github.com/axmq/mqttsn/topic"
	"github.com/axmq/mqttsn/transport"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "c", "", "configuration file")
	flag.Parse()

	if configFile == "" {
		fmt.Fprintln(os.Stderr, "-c <file> must be specified")
		os.Exit(1)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.NewSlogLogger(parseLevel(cfg.Log.Level), os.Stdout)

	if err := run(cfg, log); err != nil {
		log.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.SlogLogger) error {
	ctx := context.Background()

	sessionStore, err := openSessionStore(cfg.Session)
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}

	retainedStore, err := openRetainedStore(ctx, cfg.Retained)
	if err != nil {
		return fmt.Errorf("retained store: %w", err)
	}

	socket, err := transport.NewUDPSocket(transport.Config{Address: cfg.Gateway.ListenAddress})
	if err != nil {
		return fmt.Errorf("udp socket: %w", err)
	}
	sender := transport.NewMessageSender(socket)

	sessions := session.NewManager(session.ManagerConfig{
		Store:         sessionStore,
		SweepInterval: cfg.Gateway.SweepInterval,
	})

	registry := topic.NewRegistry()
	router := topic.NewRouter()

	hooks := hook.NewManager()
	_ = hooks.Add(hook.NewAllowlistAuthHook(true))
	_ = hooks.Add(hook.NewRateLimitHook(100, time.Second))

	d := dispatcher.New(dispatcher.Config{
		RetryInitialDelay: cfg.Gateway.RetryInitialDelay,
		RetryMaxAttempts:  cfg.Gateway.RetryMaxAttempts,
		WheelTick:         cfg.Gateway.WheelTick,
		AsleepBufferLimit: cfg.Gateway.AsleepBufferLimit,
		MaxTopicNameLen:   cfg.Gateway.MaxTopicNameLen,
		GatewayID:         cfg.Gateway.GatewayID,
		PredefinedTopics:  cfg.Gateway.PredefinedTopics,
	}, sessions, registry, router, retainedStore, sender, log)
	d.SetAuthenticator(hooks)
	d.SetRateLimiter(hooks)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		gw := metrics.New()
		reg := prometheus.NewRegistry()
		gw.Register(reg)
		d.SetMetrics(gw)

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		metricsServer = &http.Server{Addr: cfg.Metrics.ListenAddress, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	d.Start()
	go func() {
		if err := socket.Serve(ctx, d.OnIngress); err != nil {
			log.Error("socket serve stopped", "error", err)
		}
	}()

	log.Info("gateway listening", "address", cfg.Gateway.ListenAddress)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, os.Kill)
	<-stop

	log.Info("shutting down")
	shutdown := transport.NewGracefulShutdown(socket, sessions, cfg.Gateway.ShutdownTimeout)
	if err := shutdown.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown error", "error", err)
	}

	if metricsServer != nil {
		_ = metricsServer.Close()
	}
	_ = d.Close()
	_ = sessions.Close()
	_ = sessionStore.Close()
	_ = retainedStore.Close()

	return nil
}

func openSessionStore(cfg config.Session) (session.Store, error) {
	switch cfg.Backend {
	case "pebble":
		return session.NewPebbleStore(session.PebbleStoreConfig{Path: cfg.Pebble.Path})
	case "redis":
		return session.NewRedisStore(session.RedisStoreConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
	default:
		return session.NewMemoryStore(), nil
	}
}

func openRetainedStore(ctx context.Context, cfg config.Retained) (retained.Store, error) {
	switch cfg.Backend {
	case "pebble":
		backend, err := store.NewPebbleStore[retained.Message](store.PebbleStoreConfig{Path: cfg.Pebble.Path})
		if err != nil {
			return nil, err
		}
		return retained.NewPersistentStore(ctx, backend)
	default:
		return retained.NewMemoryStore(), nil
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
