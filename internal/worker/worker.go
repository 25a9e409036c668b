package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
	"github.com/dymasius12/factory-motor-monitoring/internal/metrics"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

// Store persists batches of alert events
type Store interface {
	SaveAlerts(ctx context.Context, events []models.AlertEvent) error
}

// Pool archives alert events in batches. Enqueue never blocks; events are
// dropped when the queue is full.
type Pool struct {
	store        Store
	queue        chan models.AlertEvent
	workers      int
	batchSize    int
	batchTimeout time.Duration
	storeTimeout time.Duration

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool

	// Metrics
	stored  atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Store        Store
	QueueSize    int
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
	StoreTimeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		store:        cfg.Store,
		queue:        make(chan models.AlertEvent, cfg.QueueSize),
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		storeTimeout: cfg.StoreTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins processing the queue
func (p *Pool) Start() {
	if p.started.Swap(true) {
		return
	}

	log := logger.WithComponent("archiver")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting archive worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops the workers after storing everything already queued.
func (p *Pool) Stop() {
	log := logger.WithComponent("archiver")
	log.Info().Msg("stopping archive worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().
		Uint64("stored", p.stored.Load()).
		Uint64("failed", p.failed.Load()).
		Uint64("dropped", p.dropped.Load()).
		Msg("archive worker pool stopped")
}

// OnAlert queues e for archiving.
func (p *Pool) OnAlert(e models.AlertEvent) {
	p.Enqueue(e)
}

// Enqueue adds e to the queue without blocking. It reports false when the
// event was dropped.
func (p *Pool) Enqueue(e models.AlertEvent) bool {
	select {
	case p.queue <- e:
		metrics.ArchiveQueueSize.Set(float64(len(p.queue)))
		return true
	default:
		p.dropped.Add(1)
		metrics.ArchiveTotal.WithLabelValues("dropped").Inc()
		log := logger.WithMotor("archiver", e.MotorID)
		log.Warn().
			Str("event_id", e.ID).
			Msg("archive queue full, alert not archived")
		return false
	}
}

// worker batches events from the queue
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("archiver").With().Int("worker_id", id).Logger()

	// Panic recovery
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("archiver").Inc()
		}
	}()

	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	batch := make([]models.AlertEvent, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.drain(batch)
			return

		case e := <-p.queue:
			metrics.ArchiveQueueSize.Set(float64(len(p.queue)))
			batch = append(batch, e)

			if len(batch) >= p.batchSize {
				p.storeBatch(batch)
				batch = batch[:0]
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.storeBatch(batch)
				batch = batch[:0]
			}
			timer.Reset(p.batchTimeout)
		}
	}
}

// drain stores whatever is still queued along with the pending batch
func (p *Pool) drain(batch []models.AlertEvent) {
	for {
		select {
		case e := <-p.queue:
			batch = append(batch, e)
			if len(batch) >= p.batchSize {
				p.storeBatch(batch)
				batch = batch[:0]
			}
		default:
			p.storeBatch(batch)
			metrics.ArchiveQueueSize.Set(0)
			return
		}
	}
}

// storeBatch stores a batch, falling back to one event at a time when the
// batch write fails.
func (p *Pool) storeBatch(batch []models.AlertEvent) {
	if len(batch) == 0 {
		return
	}

	log := logger.WithComponent("archiver")
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), p.storeTimeout)
	defer cancel()

	err := p.store.SaveAlerts(ctx, batch)
	duration := time.Since(start)
	metrics.ArchiveBatchDuration.Observe(duration.Seconds())

	if err == nil {
		log.Debug().
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("batch archived")
		p.stored.Add(uint64(len(batch)))
		metrics.ArchiveTotal.WithLabelValues("stored").Add(float64(len(batch)))
		return
	}

	log.Error().
		Err(err).
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Msg("failed to archive batch")

	p.storeIndividually(batch)
}

// storeIndividually retries each event of a failed batch on its own
func (p *Pool) storeIndividually(batch []models.AlertEvent) {
	log := logger.WithComponent("archiver")

	for _, e := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), p.storeTimeout)
		err := p.store.SaveAlerts(ctx, []models.AlertEvent{e})
		cancel()

		if err != nil {
			p.failed.Add(1)
			metrics.ArchiveTotal.WithLabelValues("failed").Inc()
			log.Error().
				Err(err).
				Str("event_id", e.ID).
				Str("motor_id", e.MotorID).
				Msg("failed to archive alert")
			continue
		}
		p.stored.Add(1)
		metrics.ArchiveTotal.WithLabelValues("stored").Inc()
	}
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Stored:  p.stored.Load(),
		Failed:  p.failed.Load(),
		Dropped: p.dropped.Load(),
		Queued:  len(p.queue),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Stored  uint64 `json:"stored"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
	Queued  int    `json:"queued"`
}
