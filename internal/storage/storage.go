package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dymasius12/factory-motor-monitoring/internal/aggregator"
	"github.com/dymasius12/factory-motor-monitoring/internal/config"
	"github.com/dymasius12/factory-motor-monitoring/internal/logger"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

// ErrInvalidRange is returned when a query's end is not after its start.
var ErrInvalidRange = errors.New("end must be after start")

// HistoryStore archives alert events and answers daily-count queries over
// the archive. Saving the same event ID twice stores it once.
type HistoryStore interface {
	SaveAlerts(ctx context.Context, events []models.AlertEvent) error
	// DailyCounts groups alerts with start <= timestamp < end by motor and
	// UTC date, ordered by date descending then motor ascending.
	DailyCounts(ctx context.Context, start, end time.Time) ([]aggregator.DailyCount, error)
	Ping(ctx context.Context) error
	Name() string
	Close() error
}

// Open connects the backend selected by cfg.Backend. The "none" backend
// returns a nil store and no error.
func Open(ctx context.Context, cfg config.StorageConfig) (HistoryStore, error) {
	var (
		st  HistoryStore
		err error
	)
	switch cfg.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendPostgres:
		st, err = NewPostgres(ctx, cfg.PostgresURL)
	case config.BackendMongo:
		st, err = NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("storage")
	log.Info().
		Str("backend", st.Name()).
		Msg("history store connected")
	return st, nil
}

func checkRange(start, end time.Time) error {
	if !end.After(start) {
		return ErrInvalidRange
	}
	return nil
}

// eventID is the archive key of e. Events without an ID get one derived
// from their content.
func eventID(e models.AlertEvent) string {
	if e.ID != "" {
		return e.ID
	}
	return models.ContentID(e)
}
