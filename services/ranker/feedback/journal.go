// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feedback persists user feedback events and their propagation
// outcomes in an append-only BadgerDB journal.
//
// The journal is an audit trail, not a source of truth: confidence
// lives in the graph store, and the journal records what was submitted
// and what the engine did about it. Keys are monotonic big-endian
// sequence numbers so Recent() is a reverse key scan.
package feedback

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
)

// Key prefixes keep events and outcomes in separate key ranges so each
// can be scanned independently.
var (
	eventPrefix   = []byte("evt:")
	outcomePrefix = []byte("out:")
	seqKey        = []byte("meta:seq")
)

// Sentinel errors for journal operations.
var (
	// ErrJournalClosed is returned by operations on a closed journal.
	ErrJournalClosed = errors.New("feedback journal is closed")

	// ErrCorruptRecord indicates a stored record failed to decode.
	ErrCorruptRecord = errors.New("corrupt journal record")
)

// Record is one journal entry: the submitted event plus, once
// propagation has run, its outcome.
type Record struct {
	Sequence uint64                     `json:"sequence"`
	Event    datatypes.FeedbackEvent    `json:"event"`
	Outcome  *datatypes.FeedbackOutcome `json:"outcome,omitempty"`
	StoredAt time.Time                  `json:"stored_at"`
}

// Stats summarizes journal contents.
type Stats struct {
	Events        uint64 `json:"events"`
	Outcomes      uint64 `json:"outcomes"`
	PositiveCount uint64 `json:"positive_count"`
	NegativeCount uint64 `json:"negative_count"`
}

// Journal is an append-only feedback log backed by BadgerDB.
//
// Thread Safety: Safe for concurrent use. The sequence counter is
// guarded by a mutex; BadgerDB transactions handle the rest.
type Journal struct {
	db     *badgerdb.DB
	logger *slog.Logger

	mu     sync.Mutex
	seq    uint64
	closed bool

	statsMu sync.Mutex
	stats   Stats
}

// NewJournal wraps an opened BadgerDB instance, recovering the sequence
// counter and stats from existing records.
//
// Inputs:
//   - db: An opened BadgerDB instance. The journal takes ownership and
//     closes it in Close().
//   - logger: Structured logger. Nil falls back to slog.Default().
//
// Outputs:
//   - *Journal: Ready for appends.
//   - error: Non-nil if recovery of the persisted sequence fails.
func NewJournal(db *badgerdb.DB, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	j := &Journal{
		db:     db,
		logger: logger.With(slog.String("component", "feedback_journal")),
	}
	if err := j.recover(); err != nil {
		return nil, fmt.Errorf("recover journal state: %w", err)
	}
	return j, nil
}

// recover loads the persisted sequence counter and rebuilds counters by
// scanning existing records. Journals are small relative to the graph;
// a full scan at startup is acceptable.
func (j *Journal) recover() error {
	return j.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(seqKey)
		switch {
		case errors.Is(err, badgerdb.ErrKeyNotFound):
			// Fresh journal.
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("%w: sequence value has %d bytes", ErrCorruptRecord, len(val))
				}
				j.seq = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return err
			}
		}

		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = eventPrefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				j.logger.Warn("skipping undecodable journal record",
					slog.String("key", string(it.Item().Key())),
					slog.String("error", err.Error()))
				continue
			}
			j.stats.Events++
			if rec.Event.Polarity == datatypes.PolarityPositive {
				j.stats.PositiveCount++
			} else {
				j.stats.NegativeCount++
			}
		}

		opts = badgerdb.DefaultIteratorOptions
		opts.Prefix = outcomePrefix
		opts.PrefetchValues = false
		oit := txn.NewIterator(opts)
		defer oit.Close()
		for oit.Rewind(); oit.Valid(); oit.Next() {
			j.stats.Outcomes++
		}
		return nil
	})
}

// AppendEvent records a submitted feedback event and returns its
// sequence number.
//
// Thread Safety: Safe for concurrent use.
func (j *Journal) AppendEvent(ctx context.Context, event datatypes.FeedbackEvent) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !event.Polarity.Valid() {
		return 0, fmt.Errorf("invalid polarity %q", event.Polarity)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, ErrJournalClosed
	}

	seq := j.seq + 1
	rec := Record{
		Sequence: seq,
		Event:    event,
		StoredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode journal record: %w", err)
	}

	seqVal := make([]byte, 8)
	binary.BigEndian.PutUint64(seqVal, seq)

	err = j.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(eventKey(seq), payload); err != nil {
			return err
		}
		return txn.Set(seqKey, seqVal)
	})
	if err != nil {
		return 0, fmt.Errorf("append feedback event: %w", err)
	}
	j.seq = seq

	j.statsMu.Lock()
	j.stats.Events++
	if event.Polarity == datatypes.PolarityPositive {
		j.stats.PositiveCount++
	} else {
		j.stats.NegativeCount++
	}
	j.statsMu.Unlock()
	return seq, nil
}

// AppendOutcome records the propagation and reward outcome for a
// previously appended event, keyed by that event's sequence number.
func (j *Journal) AppendOutcome(ctx context.Context, seq uint64, outcome datatypes.FeedbackOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}
	if seq == 0 || seq > j.seq {
		return fmt.Errorf("unknown event sequence %d", seq)
	}

	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome record: %w", err)
	}
	err = j.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(outcomeKey(seq), payload)
	})
	if err != nil {
		return fmt.Errorf("append feedback outcome: %w", err)
	}

	j.statsMu.Lock()
	j.stats.Outcomes++
	j.statsMu.Unlock()
	return nil
}

// Recent returns the newest n records, most recent first, each with its
// outcome attached when one has been recorded.
func (j *Journal) Recent(ctx context.Context, n int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil, ErrJournalClosed
	}
	j.mu.Unlock()

	var records []Record
	err := j.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = eventPrefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts just past the prefix range.
		seekTo := append(append([]byte{}, eventPrefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seekTo); it.Valid() && len(records) < n; it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
			}

			item, err := txn.Get(outcomeKey(rec.Sequence))
			switch {
			case errors.Is(err, badgerdb.ErrKeyNotFound):
				// Propagation outcome not recorded yet.
			case err != nil:
				return err
			default:
				var outcome datatypes.FeedbackOutcome
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &outcome)
				}); err != nil {
					return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
				}
				rec.Outcome = &outcome
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Stats returns a snapshot of journal counters.
func (j *Journal) Stats() Stats {
	j.statsMu.Lock()
	defer j.statsMu.Unlock()
	return j.stats
}

// Close flushes and closes the underlying database. Subsequent
// operations return ErrJournalClosed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(eventPrefix)+8)
	copy(key, eventPrefix)
	binary.BigEndian.PutUint64(key[len(eventPrefix):], seq)
	return key
}

func outcomeKey(seq uint64) []byte {
	key := make([]byte, len(outcomePrefix)+8)
	copy(key, outcomePrefix)
	binary.BigEndian.PutUint64(key[len(outcomePrefix):], seq)
	return key
}
