// ==============================================================================
// EMBEDDED RUN STORE - internal/repository/boltstore/store.go
// ==============================================================================
// Boltstore persists runs to a local file so the CLI runner works without a
// database server. Layout: top-level buckets "runs", "events", and
// "checkpoints"; events and checkpoints nest one bucket per run keyed by
// big-endian seq / tick, preserving order under bolt's byte-sorted cursors.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"rtgsim/internal/domain"
	"rtgsim/pkg/errors"
)

var (
	bucketRuns        = []byte("runs")
	bucketEvents      = []byte("events")
	bucketCheckpoints = []byte("checkpoints")
)

type Store struct {
	db *bolt.DB
}

// Open creates or opens the store file and its top-level buckets.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open run store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRuns, bucketEvents, bucketCheckpoints} {
			if _, berr := tx.CreateBucketIfNotExists(name); berr != nil {
				return berr
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to init run store buckets")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateRun(ctx context.Context, run *domain.RunRecord) error {
	return s.putRun(run)
}

func (s *Store) UpdateRun(ctx context.Context, run *domain.RunRecord) error {
	return s.putRun(run)
}

func (s *Store) putRun(run *domain.RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "failed to encode run record")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).Put(run.ID[:], data)
	})
}

// FindRun loads one run record.
func (s *Store) FindRun(id uuid.UUID) (*domain.RunRecord, error) {
	var run domain.RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get(id[:])
		if data == nil {
			return errors.ErrRunNotFound
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) AppendEvents(ctx context.Context, runID uuid.UUID, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketEvents).CreateBucketIfNotExists(runID[:])
		if err != nil {
			return err
		}
		for i := range events {
			data, merr := json.Marshal(&events[i])
			if merr != nil {
				return merr
			}
			if err := b.Put(seqKey(events[i].Seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// EventsSince returns persisted events with seq > afterSeq.
func (s *Store) EventsSince(runID uuid.UUID, afterSeq int64) ([]domain.Event, error) {
	var events []domain.Event
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEvents).Bucket(runID[:])
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(seqKey(afterSeq + 1)); k != nil; k, v = c.Next() {
			var ev domain.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to load events")
	}
	return events, nil
}

func (s *Store) SaveCheckpoint(ctx context.Context, runID uuid.UUID, tick int64, state []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketCheckpoints).CreateBucketIfNotExists(runID[:])
		if err != nil {
			return err
		}
		return b.Put(seqKey(tick), state)
	})
}

// LatestCheckpoint returns the newest checkpoint at or before tick.
func (s *Store) LatestCheckpoint(runID uuid.UUID, tick int64) (int64, []byte, error) {
	var (
		foundTick  int64
		foundState []byte
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCheckpoints).Bucket(runID[:])
		if b == nil {
			return errors.ErrCheckpointNotFound
		}
		c := b.Cursor()
		k, v := c.Seek(seqKey(tick))
		if k == nil || keySeq(k) > tick {
			k, v = c.Prev()
		}
		if k == nil {
			return errors.ErrCheckpointNotFound
		}
		foundTick = keySeq(k)
		foundState = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return foundTick, foundState, nil
}

func seqKey(seq int64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(seq))
	return k[:]
}

func keySeq(k []byte) int64 {
	return int64(binary.BigEndian.Uint64(k))
}
