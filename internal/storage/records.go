package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ankek/unmeiori/internal/report"
)

// Key prefixes for BadgerDB storage
const (
	recordKeyPrefix         = "record:"
	recordOperatorKeyPrefix = "record_operator:"
	templateKeyPrefix       = "template:"
)

// conflictRetries bounds read-modify-write retries on transaction conflicts
const conflictRetries = 3

// OpenBadger opens the database under dir, or an in-memory database
func OpenBadger(dir string, inMemory bool, log zerolog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{log: log.With().Str("component", "badger").Logger()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// BadgerStore keeps report records and operator templates in BadgerDB
type BadgerStore struct {
	db    *badger.DB
	clock func() time.Time
}

// NewBadgerStore creates a new BadgerDB-backed store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, clock: time.Now}
}

// Get retrieves a record by ID.
func (s *BadgerStore) Get(ctx context.Context, id string) (*report.Record, error) {
	var rec report.Record
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, recordKeyPrefix+id, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put stores a record, stamping CreatedAt on first write and UpdatedAt always.
func (s *BadgerStore) Put(ctx context.Context, rec *report.Record) error {
	now := s.clock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(recordKeyPrefix+rec.ID), data); err != nil {
			return fmt.Errorf("set record: %w", err)
		}
		// Operator-to-record mapping for listing
		opKey := []byte(recordOperatorKeyPrefix + rec.OperatorID + ":" + rec.ID)
		if err := txn.Set(opKey, []byte(rec.ID)); err != nil {
			return fmt.Errorf("set operator mapping: %w", err)
		}
		return nil
	})
}

// Update applies fn to the stored record inside one transaction.
func (s *BadgerStore) Update(ctx context.Context, id string, fn func(*report.Record) error) (*report.Record, error) {
	var out report.Record
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			var rec report.Record
			if err := getJSON(txn, recordKeyPrefix+id, &rec); err != nil {
				return err
			}
			if err := fn(&rec); err != nil {
				return err
			}
			rec.ID = id
			rec.UpdatedAt = s.clock()
			data, err := json.Marshal(&rec)
			if err != nil {
				return fmt.Errorf("marshal record: %w", err)
			}
			out = rec
			return txn.Set([]byte(recordKeyPrefix+id), data)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns the records of one operator, newest first.
func (s *BadgerStore) List(ctx context.Context, operatorID string) ([]*report.Record, error) {
	var records []*report.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(recordOperatorKeyPrefix + operatorID + ":")
		var ids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			})
			if err != nil {
				return err
			}
		}

		for _, id := range ids {
			var rec report.Record
			if err := getJSON(txn, recordKeyPrefix+id, &rec); err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return err
			}
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list operator records: %w", err)
	}
	sortNewestFirst(records)
	return records, nil
}

// Template returns the operator's settings, creating the defaults on first access.
func (s *BadgerStore) Template(ctx context.Context, operatorID string) (*report.TemplateSettings, error) {
	var t report.TemplateSettings
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, templateKeyPrefix+operatorID, &t)
	})
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	t = report.DefaultTemplate(operatorID)
	if err := s.SaveTemplate(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTemplate stores the operator's settings.
func (s *BadgerStore) SaveTemplate(ctx context.Context, t *report.TemplateSettings) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(templateKeyPrefix+t.OperatorID), data)
	})
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func sortNewestFirst(records []*report.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
}

// badgerLogger routes badger's printf-style logging into zerolog
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Trace().Msgf(format, args...)
}
