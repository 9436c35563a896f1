// Package history persists encounters and per-peer summaries in pebble.
//
// Keys:
//
//	peer/<hex identity key>  CBOR PeerRecord
//	enc/<ksuid>              CBOR core.Encounter
//
// ksuids sort by creation time, so iterating enc/ backwards yields the
// newest encounters first.
package history

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"

	"firestige.xyz/streetpass/internal/core"
)

const (
	peerPrefix      = "peer/"
	encounterPrefix = "enc/"
)

// ErrNotFound is returned when a peer has never been recorded.
var ErrNotFound = errors.New("history: not found")

// PeerRecord summarizes every encounter with one identity key.
type PeerRecord struct {
	Key       string    `json:"key" cbor:"1,keyasint"`
	FirstSeen time.Time `json:"first_seen" cbor:"2,keyasint"`
	LastSeen  time.Time `json:"last_seen" cbor:"3,keyasint"`
	Count     uint64    `json:"count" cbor:"4,keyasint"`
	LastMAC   string    `json:"last_mac" cbor:"5,keyasint"`
}

// Store is a pebble-backed encounter history. It is safe for concurrent use.
type Store struct {
	mu  sync.Mutex // serializes peer read-modify-write
	db  *pebble.DB
	enc cbor.EncMode
}

// Open opens or creates the store at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, enc: em}, nil
}

// Record stores enc and folds it into its peer's summary.
func (s *Store) Record(enc *core.Encounter) error {
	if enc.ID == "" || enc.PeerKey == "" {
		return errors.New("history: encounter needs an id and a peer key")
	}
	encData, err := s.enc.Marshal(enc)
	if err != nil {
		return fmt.Errorf("encode encounter: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.peer(enc.PeerKey)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = &PeerRecord{Key: enc.PeerKey, FirstSeen: enc.Timestamp}
	case err != nil:
		return err
	}
	rec.Count++
	if enc.Timestamp.After(rec.LastSeen) {
		rec.LastSeen = enc.Timestamp
		rec.LastMAC = enc.PeerMAC
	}
	if enc.Timestamp.Before(rec.FirstSeen) {
		rec.FirstSeen = enc.Timestamp
	}
	peerData, err := s.enc.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode peer record: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set([]byte(encounterPrefix+enc.ID), encData, nil); err != nil {
		return err
	}
	if err := b.Set([]byte(peerPrefix+enc.PeerKey), peerData, nil); err != nil {
		return err
	}
	return b.Commit(pebble.NoSync)
}

// HandleEncounter records enc so a Store can sit in the scanner's handler chain.
func (s *Store) HandleEncounter(_ context.Context, enc *core.Encounter) error {
	return s.Record(enc)
}

// Peer returns the summary for one identity key.
func (s *Store) Peer(key string) (*PeerRecord, error) {
	return s.peer(key)
}

func (s *Store) peer(key string) (*PeerRecord, error) {
	data, closer, err := s.db.Get([]byte(peerPrefix + key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, fmt.Errorf("%w: peer %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var rec PeerRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode peer %s: %w", key, err)
	}
	return &rec, nil
}

// Peers returns every peer summary, most recently seen first.
func (s *Store) Peers() ([]PeerRecord, error) {
	var out []PeerRecord
	err := s.scan(peerPrefix, false, 0, func(v []byte) error {
		var rec PeerRecord
		if err := cbor.Unmarshal(v, &rec); err != nil {
			return err
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b PeerRecord) int { return b.LastSeen.Compare(a.LastSeen) })
	return out, nil
}

// Encounters returns up to limit encounters, newest first. limit <= 0
// returns all of them.
func (s *Store) Encounters(limit int) ([]core.Encounter, error) {
	var out []core.Encounter
	err := s.scan(encounterPrefix, true, limit, func(v []byte) error {
		var enc core.Encounter
		if err := cbor.Unmarshal(v, &enc); err != nil {
			return err
		}
		out = append(out, enc)
		return nil
	})
	return out, err
}

func (s *Store) scan(prefix string, reverse bool, limit int, fn func(v []byte) error) error {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: prefixUpperBound([]byte(prefix)),
	})
	if err != nil {
		return err
	}
	defer it.Close()

	valid, step := it.First, it.Next
	if reverse {
		valid, step = it.Last, it.Prev
	}
	n := 0
	for ok := valid(); ok; ok = step() {
		if err := fn(it.Value()); err != nil {
			return fmt.Errorf("decode %s: %w", it.Key(), err)
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
	}
	return it.Error()
}

// prefixUpperBound returns the smallest key greater than every key with prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := slices.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if err := s.db.Flush(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
