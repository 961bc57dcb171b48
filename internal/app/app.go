package app

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatproxy/internal/config"
	"chatproxy/internal/database"
	"chatproxy/internal/handlers"
	"chatproxy/internal/metrics"
	"chatproxy/internal/repository"
	"chatproxy/internal/router"
	"chatproxy/internal/server"
	"chatproxy/internal/services"
	"chatproxy/internal/websocket"
	"chatproxy/internal/worker"
)

const shutdownTimeout = 30 * time.Second

// stack is everything a variant serves with, plus what must be torn down.
type stack struct {
	cfg       *config.Config
	proxy     *services.ChatProxy
	page      services.StaticPage
	collector *metrics.Collector
	hub       *websocket.Hub
	audit     *worker.Pool
	cleanups  []func()
}

func (s *stack) onClose(fn func()) {
	s.cleanups = append(s.cleanups, fn)
}

func (s *stack) close() {
	for i := len(s.cleanups) - 1; i >= 0; i-- {
		s.cleanups[i]()
	}
}

// Run boots variant v and blocks until SIGINT or SIGTERM.
func Run(v config.Variant) {
	log.Printf("🚀 Starting chat proxy (%s)...", v)

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load(v)
	log.Printf("✓ Environment variables loaded (env=%s, provider=%s)", cfg.Env, cfg.Provider)

	st := build(cfg)
	defer st.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	if v == config.Relay {
		err = serveHTTP(ctx, st)
	} else {
		err = serveRaw(ctx, st)
	}
	if err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func build(cfg *config.Config) *stack {
	st := &stack{
		cfg:       cfg,
		page:      services.StaticPage{Path: cfg.StaticFile},
		collector: metrics.NewCollector(string(cfg.Variant)),
	}

	// ──── Step 2: Initialize Upstream Provider ────
	provider, err := newProvider(cfg, st)
	if err != nil {
		log.Fatalf("✗ %s client initialization failed: %v", cfg.Provider, err)
	}
	log.Printf("✓ %s client initialized (model %s)", provider.Name(), cfg.UpstreamModel())
	if cfg.APIKey() == "" {
		log.Println("✗ No API key configured; chat requests will fail until one is set")
	}

	opts := []services.ProxyOption{services.WithObserver(st.collector)}

	// ──── Step 3: Initialize PostgreSQL Audit Log (optional) ────
	if cfg.DatabaseURL != "" {
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("✗ PostgreSQL connection failed: %v", err)
		}
		st.onClose(pool.Close)
		log.Println("✓ PostgreSQL connected")

		if err := database.RunMigrations(pool, migrationsFS(cfg)); err != nil {
			log.Fatalf("✗ Database migration failed: %v", err)
		}
		log.Println("✓ Database migrations applied")

		repo := repository.NewExchangeRepo(pool)
		st.audit = worker.NewPool(repo, cfg.AuditWorkers, 256)
		st.audit.Start()
		st.onClose(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := st.audit.Stop(ctx); err != nil {
				log.Printf("Audit pool did not drain: %v (%d dropped)", err, st.audit.Dropped())
			}
		})
		opts = append(opts, services.WithAudit(st.audit))
		log.Printf("✓ Audit worker pool started (%d goroutines)", cfg.AuditWorkers)

		retention := worker.NewRetention(repo, cfg.AuditRetentionDays, cfg.AuditPruneSchedule)
		if err := retention.Start(); err != nil {
			log.Fatalf("✗ Audit retention failed: %v", err)
		}
		st.onClose(retention.Stop)
		if cfg.AuditRetentionDays > 0 {
			log.Printf("✓ Audit retention: %d days, schedule %q", cfg.AuditRetentionDays, cfg.AuditPruneSchedule)
		}
	}

	// ──── Step 4: Initialize Redis Status Events (optional) ────
	if cfg.RedisURL != "" {
		redisClients, err := database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		st.onClose(redisClients.Close)
		log.Println("✓ Redis connected")

		opts = append(opts, services.WithEvents(services.NewRedisPublisher(redisClients.Publisher)))
		st.hub = websocket.NewHub(websocket.RedisSubscriber{Client: redisClients.PubSub}, services.SessionChannel)
		log.Println("✓ WebSocket hub started")
	}

	// ──── Step 5: Load Prompt Template (optional) ────
	if cfg.UseTemplate && cfg.TemplateFile != "" {
		tmpl, err := services.NewTemplateFile(cfg.TemplateFile)
		if err != nil {
			log.Fatalf("✗ Prompt template failed to load: %v", err)
		}
		watchCtx, cancel := context.WithCancel(context.Background())
		st.onClose(cancel)
		go func() {
			if err := tmpl.Watch(watchCtx); err != nil {
				log.Printf("✗ Prompt template watcher stopped: %v", err)
			}
		}()
		opts = append(opts, services.WithTemplate(tmpl))
		log.Printf("✓ Prompt template loaded from %s (watching for changes)", cfg.TemplateFile)
	}

	st.proxy = services.NewChatProxy(services.ProxyConfig{
		Variant:         string(cfg.Variant),
		APIKey:          cfg.APIKey(),
		APIKeyName:      cfg.APIKeyVar(),
		Model:           cfg.UpstreamModel(),
		UseTemplate:     cfg.UseTemplate,
		Reshape:         cfg.Reshape,
		MaxMessageRunes: cfg.MaxMessageRunes,
	}, provider, opts...)

	if _, ok := st.page.Contents(); !ok {
		log.Printf("✗ Static page %s not readable; GET / will answer 404", cfg.StaticFile)
	}

	return st
}

func newProvider(cfg *config.Config, st *stack) (services.Provider, error) {
	if cfg.Provider == "gemini" {
		p, err := services.NewGeminiProvider(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.UpstreamTimeout, cfg.UpstreamRetries)
		if err != nil {
			return nil, err
		}
		st.onClose(p.Close)
		return p, nil
	}
	return services.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.UpstreamTimeout, cfg.UpstreamRetries), nil
}

func migrationsFS(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return database.Migrations()
}

func (st *stack) routerOptions() router.Options {
	opts := router.Options{
		Metrics:  st.collector.Handler(),
		Observer: st.collector,
	}
	if st.hub != nil {
		opts.WS = st.hub.HandleWebSocket
	}
	return opts
}

// serveHTTP runs the relay variant on net/http with the chi router.
func serveHTTP(ctx context.Context, st *stack) error {
	opts := st.routerOptions()
	opts.Static = handlers.NewStaticHandler(st.page)
	opts.Chat = handlers.NewChatHandler(st.proxy, int64(st.cfg.MaxRequestBytes))

	srv := &http.Server{
		Addr:         st.cfg.Addr(),
		Handler:      router.New(opts),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: st.cfg.ConnTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("✓ Chat proxy ready on http://localhost:%s (%s)", st.cfg.Port, st.cfg.Env)
	log.Printf("  API: http://localhost:%s/api/chat", st.cfg.Port)
	if st.hub != nil {
		log.Printf("  WS:  ws://localhost:%s/api/ws", st.cfg.Port)
	}

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// serveRaw runs the socket variants on the hand-framed TCP server. Metrics
// and websockets, when enabled, go on a separate net/http listener.
func serveRaw(ctx context.Context, st *stack) error {
	dispatcher := server.NewDispatcher(st.page, st.proxy)
	srv := server.New(server.Options{
		ReadBufferBytes: st.cfg.ReadBufferBytes,
		MaxRequestBytes: st.cfg.MaxRequestBytes,
		ConnTimeout:     st.cfg.ConnTimeout,
	}, dispatcher, st.collector)

	var ops *http.Server
	if st.cfg.MetricsAddr != "" {
		ops = &http.Server{
			Addr:              st.cfg.MetricsAddr,
			Handler:           router.NewOps(st.routerOptions()),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := ops.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				log.Printf("✗ Ops listener failed: %v", err)
			}
		}()
		log.Printf("✓ Ops listener on %s (/metrics, /api/ws)", st.cfg.MetricsAddr)
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if ops != nil {
			ops.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	log.Printf("✓ Server listening on port %s (%s)", st.cfg.Port, st.cfg.Env)

	if err := srv.ListenAndServe(st.cfg.Addr()); !errors.Is(err, server.ErrServerClosed) {
		return err
	}
	return nil
}
