// Copyright 2026 Clanwatch Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	gcInterval       = 5 * time.Minute
	gcDiscardRatio   = 0.5
	metricNamePrefix = "checkpoint_"
)

// BadgerStore is a badger-backed implementation of Store. When no data
// directory is configured it runs fully in memory, which is useful for
// testing but obviously not restart-safe.
type BadgerStore struct {
	db           *badger.DB
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	metrics      *storeMetrics
	gcTicker     *time.Ticker
	gcStopCh     chan struct{}
	gcWg         sync.WaitGroup
	dataDir      string
	gcEnabled    bool
}

type storeMetrics struct {
	reads  prometheus.Counter
	writes prometheus.Counter
}

type BadgerStoreOptionFunc func(*BadgerStore)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) BadgerStoreOptionFunc {
	return func(b *BadgerStore) {
		b.logger = logger
	}
}

// WithPromRegistry specifies the prometheus registry to use for metrics
func WithPromRegistry(
	registry prometheus.Registerer,
) BadgerStoreOptionFunc {
	return func(b *BadgerStore) {
		b.promRegistry = registry
	}
}

// WithDataDir specifies the data directory to use for storage
func WithDataDir(dataDir string) BadgerStoreOptionFunc {
	return func(b *BadgerStore) {
		b.dataDir = dataDir
	}
}

// WithGc specifies whether value log garbage collection is enabled
func WithGc(enabled bool) BadgerStoreOptionFunc {
	return func(b *BadgerStore) {
		b.gcEnabled = enabled
	}
}

// NewBadgerStore creates a new checkpoint store
func NewBadgerStore(opts ...BadgerStoreOptionFunc) (*BadgerStore, error) {
	s := &BadgerStore{
		gcEnabled: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var db *badger.DB
	var err error
	if s.dataDir == "" {
		// No dataDir, use in-memory config
		badgerOpts := badger.DefaultOptions("").
			WithLogger(newBadgerLogger(s.logger)).
			// The default INFO logging is a bit verbose
			WithLoggingLevel(badger.WARNING).
			WithInMemory(true)
		db, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
		// Value log GC is meaningless without a value log on disk
		s.gcEnabled = false
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(s.dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		checkpointDir := filepath.Join(
			s.dataDir,
			"checkpoint",
		)
		badgerOpts := badger.DefaultOptions(checkpointDir).
			WithLogger(newBadgerLogger(s.logger)).
			WithLoggingLevel(badger.WARNING)
		db, err = badger.Open(badgerOpts)
		if err != nil {
			return nil, err
		}
	}
	s.db = db
	if s.promRegistry != nil {
		s.registerMetrics()
	}
	if s.gcEnabled {
		s.gcTicker = time.NewTicker(gcInterval)
		s.gcStopCh = make(chan struct{})
		s.gcWg.Add(1)
		go s.valueLogGc(s.gcTicker, s.gcStopCh)
	}
	return s, nil
}

func (s *BadgerStore) registerMetrics() {
	reads := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricNamePrefix + "reads_total",
			Help: "Total number of checkpoint store reads",
		},
	)
	writes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: metricNamePrefix + "writes_total",
			Help: "Total number of checkpoint store writes",
		},
	)
	s.promRegistry.MustRegister(reads, writes)
	s.metrics = &storeMetrics{
		reads:  reads,
		writes: writes,
	}
}

func (s *BadgerStore) valueLogGc(t *time.Ticker, stop <-chan struct{}) {
	defer s.gcWg.Done()
	for {
		select {
		case <-t.C:
		again:
			err := s.db.RunValueLogGC(gcDiscardRatio)
			if err != nil {
				// Log any actual errors
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn(
						fmt.Sprintf("checkpoint DB: GC failure: %s", err),
						"component", "checkpoint",
					)
				}
			} else {
				// Run it again if it just ran successfully
				goto again
			}
		case <-stop:
			return
		}
	}
}

// Get retrieves the value for a key. ErrKeyNotFound is returned when no
// value has ever been written for the key.
func (s *BadgerStore) Get(key string) (string, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		value = string(val)
		return nil
	})
	if err != nil {
		return "", err
	}
	if s.metrics != nil {
		s.metrics.reads.Inc()
	}
	return value, nil
}

// Set stores a value for a key, replacing any existing value
func (s *BadgerStore) Set(key string, value string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.writes.Inc()
	}
	return nil
}

// Delete removes a key. Deleting a key that does not exist is not an error
func (s *BadgerStore) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.writes.Inc()
	}
	return nil
}

// Close stops the GC goroutine and closes the underlying database
func (s *BadgerStore) Close() error {
	if s.gcTicker != nil {
		s.gcTicker.Stop()
		if s.gcStopCh != nil {
			close(s.gcStopCh)
			s.gcStopCh = nil
		}
		s.gcWg.Wait()
		s.gcTicker = nil
	}
	return s.db.Close()
}

// DB returns the database handle
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}
