package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dymasius12/factory-motor-monitoring/internal/aggregator"
	"github.com/dymasius12/factory-motor-monitoring/internal/alerts"
	"github.com/dymasius12/factory-motor-monitoring/internal/api"
	"github.com/dymasius12/factory-motor-monitoring/internal/broker"
	"github.com/dymasius12/factory-motor-monitoring/internal/config"
	"github.com/dymasius12/factory-motor-monitoring/internal/handlers"
	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
	"github.com/dymasius12/factory-motor-monitoring/internal/middleware"
	"github.com/dymasius12/factory-motor-monitoring/internal/publisher"
	"github.com/dymasius12/factory-motor-monitoring/internal/storage"
	"github.com/dymasius12/factory-motor-monitoring/internal/subscriber"
	"github.com/dymasius12/factory-motor-monitoring/internal/worker"
	"github.com/dymasius12/factory-motor-monitoring/internal/ws"
)

const (
	shutdownTimeout = 10 * time.Second
	statsInterval   = 30 * time.Second
)

// Processor wires ingestion, fanout and the consumer side together and owns
// their lifecycle.
type Processor struct {
	cfg        *config.Config
	configPath string

	transport broker.Transport
	engine    *alerts.Engine
	publisher *publisher.Publisher
	ingest    *handlers.IngestHandler

	agg         *aggregator.Aggregator
	hub         *ws.Hub
	store       storage.HistoryStore
	archiver    *worker.Pool
	subscribers []*subscriber.Subscriber

	router     chi.Router
	httpServer *http.Server
	wg         sync.WaitGroup
}

// Option configures a Processor.
type Option func(*Processor)

// WithConfigPath enables hot reload of the config file at path.
func WithConfigPath(path string) Option {
	return func(p *Processor) { p.configPath = path }
}

// New constructs a Processor with given config.
func New(cfg *config.Config, opts ...Option) *Processor {
	p := &Processor{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run initializes every component, serves HTTP and blocks until ctx is
// cancelled or the server fails.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Msg("processor starting")

	if err := p.Init(ctx); err != nil {
		log.Error().Err(err).Msg("failed to initialize processor")
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.Start(runCtx)

	p.httpServer = &http.Server{
		Addr:         p.cfg.Server.Addr,
		Handler:      p.router,
		ReadTimeout:  p.cfg.Server.ReadTimeout,
		WriteTimeout: p.cfg.Server.WriteTimeout,
		IdleTimeout:  p.cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", p.cfg.Server.Addr).Msg("starting HTTP server")
		if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server error")
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	cancel()
	p.Shutdown()
	return runErr
}

// Init builds every component from the config. It fails only when a
// required broker cannot be reached.
func (p *Processor) Init(ctx context.Context) error {
	log := logger.WithComponent("processor")
	cfg := p.cfg

	if err := p.initTransport(ctx); err != nil {
		return err
	}

	p.engine = alerts.NewEngine(alerts.Thresholds{
		Vibration:   cfg.Thresholds.Vibration,
		Temperature: cfg.Thresholds.Temperature,
	})
	p.publisher = publisher.New(p.transport, cfg.Broker.PublishTimeout)
	p.ingest = handlers.NewIngestHandler(handlers.IngestConfig{
		Evaluator:   p.engine,
		Publisher:   p.publisher,
		MaxBodySize: cfg.Server.MaxBodyBytes,
	})

	if cfg.Aggregator.Enabled {
		p.agg = aggregator.New(
			aggregator.WithHorizon(cfg.Aggregator.Horizon),
			aggregator.WithMaxPerMotor(cfg.Aggregator.MaxPerMotor),
			aggregator.WithFeedSize(cfg.Aggregator.FeedSize),
			aggregator.WithDailyRetention(cfg.Aggregator.DailyRetentionDays),
		)
		p.hub = ws.New(func() any { return p.agg.Snapshot(p.agg.Now()) })
	}

	p.initStorage(ctx)
	p.initSubscribers()
	p.router = p.routes()

	log.Info().
		Bool("ingest", cfg.Server.Ingest).
		Bool("aggregator", cfg.Aggregator.Enabled).
		Bool("archive", p.archiver != nil).
		Bool("fanout", p.transport != nil).
		Msg("processor initialized")
	return nil
}

// initTransport opens the fanout transport. An unreachable broker leaves the
// transport nil so publishing degrades to logging, unless the broker is
// marked required.
func (p *Processor) initTransport(ctx context.Context) error {
	log := logger.WithComponent("processor")

	t, err := broker.Open(ctx, p.cfg.Broker)
	switch {
	case err == nil:
		p.transport = t
	case errors.Is(err, broker.ErrDisabled):
		log.Info().Msg("fanout disabled, alerts will be logged only")
	case errors.Is(err, broker.ErrUnavailable) && !p.cfg.Broker.Required:
		log.Warn().Err(err).Msg("broker unavailable, continuing without fanout")
	default:
		return fmt.Errorf("failed to open broker: %w", err)
	}
	return nil
}

// initStorage connects the optional history store. Failures are logged and
// the archive is skipped.
func (p *Processor) initStorage(ctx context.Context) {
	log := logger.WithComponent("processor")
	cfg := p.cfg.Storage

	st, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Warn().Err(err).Str("backend", cfg.Backend).Msg("history store unavailable, archive disabled")
		return
	}
	if st == nil {
		return
	}

	p.store = st
	p.archiver = worker.NewPool(worker.Config{
		Store:        st,
		Workers:      cfg.Workers,
		QueueSize:    cfg.QueueSize,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		StoreTimeout: cfg.QueryTimeout,
	})
	log.Info().Int("workers", cfg.Workers).Msg("archive worker pool initialized")
}

// initSubscribers creates one subscriber per consumer role. Each role has
// its own group so every role receives every event.
func (p *Processor) initSubscribers() {
	if p.transport == nil {
		if p.agg != nil || p.archiver != nil {
			log := logger.WithComponent("processor")
			log.Warn().Msg("no fanout transport, consumer side receives no alerts")
		}
		return
	}

	group := p.cfg.Broker.Kafka.GroupID
	if p.agg != nil {
		p.subscribers = append(p.subscribers, subscriber.New(p.transport, group, p.agg, p.hub))
	}
	if p.archiver != nil {
		p.subscribers = append(p.subscribers, subscriber.New(p.transport, group+"-archiver", p.archiver))
	}
}

// routes builds the HTTP router.
func (p *Processor) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logging, middleware.Recovery, middleware.CORS)

	r.Handle("/health", handlers.NewHealthHandler(nil))
	r.Get("/stats", p.statsHandler)
	r.Handle("/metrics", promhttp.Handler())

	if p.cfg.Server.Ingest {
		// The ingest handler answers every method itself.
		r.Handle("/api/sensor", p.ingest)
	}

	if p.agg != nil {
		var history api.HistoryReader
		if p.store != nil {
			history = p.store
		}
		api.New(api.Config{
			Aggregator:    p.agg,
			History:       history,
			QueryTimeout:  p.cfg.Storage.QueryTimeout,
			RetentionDays: p.cfg.Aggregator.DailyRetentionDays,
		}).Routes(r)
		r.Get("/ws/alerts", p.hub.ServeHTTP)
	}

	return r
}

// Handler returns the HTTP handler built by Init.
func (p *Processor) Handler() http.Handler {
	return p.router
}

// Start launches the background components. They stop when ctx is
// cancelled; call Shutdown afterwards to wait for them.
func (p *Processor) Start(ctx context.Context) {
	log := logger.WithComponent("processor")

	if p.archiver != nil {
		p.archiver.Start()
	}

	if p.hub != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.hub.Run(ctx)
		}()
	}

	for _, s := range p.subscribers {
		p.wg.Add(1)
		go func(s *subscriber.Subscriber) {
			defer p.wg.Done()
			if err := s.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("alert subscriber exited")
			}
		}(s)
	}

	if p.configPath != "" {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := config.Watch(ctx, p.configPath, p.applyConfig); err != nil {
				log.Error().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(ctx)
	}()
}

// applyConfig applies the settings that can change without a restart.
func (p *Processor) applyConfig(cfg *config.Config) {
	logger.SetLevel(cfg.LogLevel)
	p.engine.SetThresholds(alerts.Thresholds{
		Vibration:   cfg.Thresholds.Vibration,
		Temperature: cfg.Thresholds.Temperature,
	})
}

// Shutdown performs graceful shutdown. The context passed to Start must
// already be cancelled.
func (p *Processor) Shutdown() {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	if p.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		log.Info().Msg("stopping HTTP server")
		if err := p.httpServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		cancel()
	}

	// 2. Wait for subscribers and background loops
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Warn().Msg("background shutdown timeout - continuing")
	}

	// 3. Flush the archive
	if p.archiver != nil {
		p.archiver.Stop()
	}

	// 4. Close transport and store
	if p.transport != nil {
		log.Info().Str("transport", p.transport.Name()).Msg("closing fanout transport")
		if err := p.transport.Close(); err != nil {
			log.Error().Err(err).Msg("transport close error")
		}
	}
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			log.Error().Err(err).Msg("history store close error")
		}
	}

	log.Info().Msg("processor stopped gracefully")
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.Stats()
			ev := log.Info().
				Uint64("readings_accepted", s.Ingest.Accepted).
				Uint64("readings_rejected", s.Ingest.Rejected).
				Uint64("alerts", s.Ingest.Alerts).
				Uint64("published", s.Publisher.Published).
				Uint64("publish_failed", s.Publisher.Failed).
				Uint64("publish_dropped", s.Publisher.Dropped)
			if s.Aggregator != nil {
				ev = ev.Int("motors", s.Aggregator.Motors).Int("stream_clients", s.StreamClients)
			}
			if s.Archive != nil {
				ev = ev.Uint64("archived", s.Archive.Stored).Uint64("archive_dropped", s.Archive.Dropped)
			}
			ev.Msg("stats")
		}
	}
}

// Stats is the /stats body.
type Stats struct {
	Transport     string               `json:"transport"`
	Ingest        handlers.IngestStats `json:"ingest"`
	Publisher     publisher.Stats      `json:"publisher"`
	Subscribers   []subscriber.Stats   `json:"subscribers"`
	Aggregator    *aggregator.Stats    `json:"aggregator,omitempty"`
	StreamClients int                  `json:"stream_clients"`
	Archive       *worker.Stats        `json:"archive,omitempty"`
	Thresholds    alerts.Thresholds    `json:"thresholds"`
}

// Stats collects component counters.
func (p *Processor) Stats() Stats {
	s := Stats{
		Transport:   "none",
		Ingest:      p.ingest.Stats(),
		Publisher:   p.publisher.Stats(),
		Subscribers: make([]subscriber.Stats, 0, len(p.subscribers)),
		Thresholds:  p.engine.Thresholds(),
	}
	if p.transport != nil {
		s.Transport = p.transport.Name()
	}
	for _, sub := range p.subscribers {
		s.Subscribers = append(s.Subscribers, sub.Stats())
	}
	if p.agg != nil {
		as := p.agg.Stats()
		s.Aggregator = &as
		s.StreamClients = p.hub.Count()
	}
	if p.archiver != nil {
		arch := p.archiver.Stats()
		s.Archive = &arch
	}
	return s
}

// statsHandler returns current statistics
func (p *Processor) statsHandler(w http.ResponseWriter, _ *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, p.Stats())
}
