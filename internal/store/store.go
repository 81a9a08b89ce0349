// Package store persists run reports in an embedded Badger database.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/born-ml/bnn/internal/uncertainty"
	"github.com/born-ml/bnn/internal/wrapper"
)

const reportPrefix = "run/"

// ErrNotFound is returned when no report has the requested id.
var ErrNotFound = errors.New("store: report not found")

// Report is everything recorded about one experiment run.
type Report struct {
	ID            uuid.UUID                        `json:"id"`
	CreatedAt     time.Time                        `json:"created_at"`
	Command       string                           `json:"command"`
	Model         string                           `json:"model"`
	Config        json.RawMessage                  `json:"config,omitempty"`
	Epochs        []wrapper.EpochResult            `json:"epochs,omitempty"`
	Accuracy      float64                          `json:"accuracy"`
	Robustness    map[string][]wrapper.SweepResult `json:"robustness,omitempty"`
	Reliability   *uncertainty.Reliability         `json:"reliability,omitempty"`
	Temperature   *wrapper.TemperatureResult       `json:"temperature,omitempty"`
	TotalVariance [][]float64                      `json:"total_variance,omitempty"`
}

// Store is a report database.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open opens or creates the database at path. An empty path keeps everything in
// memory.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// Put stores r, assigning an id and creation time when missing.
func (s *Store) Put(ctx context.Context, r *Report) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", r.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(r.ID), value)
	})
	if err != nil {
		return fmt.Errorf("put report %s: %w", r.ID, err)
	}
	s.logger.Debug("report stored", "id", r.ID, "bytes", len(value))
	return nil
}

// Get loads the report with the given id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var r Report
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &r)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	return &r, nil
}

// List returns every report, oldest first.
func (s *Store) List(ctx context.Context) ([]*Report, error) {
	var reports []*Report
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(reportPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("context cancelled: %w", err)
			}
			var r Report
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			reports = append(reports, &r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.Before(reports[j].CreatedAt)
	})
	return reports, nil
}

// Delete removes a report. Deleting a missing id is not an error.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key(id))
	})
}

func key(id uuid.UUID) []byte {
	return []byte(reportPrefix + id.String())
}

// badgerLogger routes Badger's internal logging to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
