package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/orneryd/solvanity/pkg/logging"
)

// BadgerSink indexes matches in BadgerDB, keyed by address.
type BadgerSink struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool
}

// NewBadgerSink opens (or creates) a Badger database in dir.
func NewBadgerSink(dir string, logger *slog.Logger) (*BadgerSink, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger})
	return openBadgerSink(opts)
}

// NewBadgerSinkInMemory opens an in-memory database.
func NewBadgerSinkInMemory() (*BadgerSink, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return openBadgerSink(opts)
}

// NewMemorySink creates an in-memory BadgerSink for tests.
func NewMemorySink() *BadgerSink {
	sink, err := NewBadgerSinkInMemory()
	if err != nil {
		// In testing context, panic is acceptable for setup failures
		panic(fmt.Sprintf("failed to create in-memory BadgerSink: %v", err))
	}
	return sink
}

func openBadgerSink(opts badger.Options) (*BadgerSink, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("storage: opening badger: %w", err)
	}
	return &BadgerSink{db: db}, nil
}

func (s *BadgerSink) Save(rec Record) (bool, error) {
	if _, err := rec.Keypair(); err != nil {
		return false, err
	}
	data, err := serializeRecord(rec)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}

	written := false
	err = s.db.Update(func(txn *badger.Txn) error {
		key := recordKey(rec.Address)
		item, err := txn.Get(key)
		switch {
		case err == nil:
			var existing Record
			if err := item.Value(func(val []byte) error {
				existing, err = deserializeRecord(val)
				return err
			}); err != nil {
				return err
			}
			if sameKeypair(existing, rec) {
				return nil
			}
			return fmt.Errorf("%w: %s", ErrConflict, rec.Address)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		written = true
		return txn.Set(key, data)
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

// Get returns the record stored for address.
func (s *BadgerSink) Get(address string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, false, ErrClosed
	}

	var rec Record
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(address))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			rec, err = deserializeRecord(val)
			return err
		})
	})
	return rec, found, err
}

// List returns all stored records in address order.
func (s *BadgerSink) List() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := deserializeRecord(val)
				if err != nil {
					return err
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

func (s *BadgerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// badgerLogger routes Badger's printf-style logs into slog.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) logger() *slog.Logger {
	if b.l == nil {
		return logging.Discard()
	}
	return b.l.With("component", "badger")
}

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.logger().Error(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.logger().Warn(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.logger().Debug(fmt.Sprintf(f, v...)) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.logger().Debug(fmt.Sprintf(f, v...)) }
