// Package devstore persists sightings of known devices: when an
// identity was first and last seen connected, independent of whether
// the device is attached right now.
package devstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger"

	"github.com/kingcoyote/hid/hiddev"
)

type Record struct {
	Identity    hiddev.Identity `json:"-"`
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	FirstSeenAt time.Time       `json:"firstSeenAt"`
	LastSeenAt  time.Time       `json:"lastSeenAt"`
}

type Store struct {
	db  *badger.DB
	now func() time.Time
}

func New(db *badger.DB, now func() time.Time) *Store {
	return &Store{db: db, now: now}
}

func key(id hiddev.Identity) []byte {
	return []byte(fmt.Sprintf("devices/%s", id))
}

// Touch records a sighting of the identity, creating the record on
// first sight and advancing LastSeenAt otherwise.
func (s *Store) Touch(id hiddev.Identity, name string) (Record, error) {
	var rec Record
	now := s.now()
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			rec = Record{Name: name, FirstSeenAt: now}
		case err != nil:
			return err
		default:
			err = item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
		}
		rec.Identity = id
		rec.ID = id.String()
		if name != "" {
			rec.Name = name
		}
		if rec.FirstSeenAt.IsZero() {
			rec.FirstSeenAt = now
		}
		rec.LastSeenAt = now
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record: %w", err)
		}
		return txn.Set(key(id), b)
	})
	if err != nil {
		return Record{}, fmt.Errorf("failed to record sighting: %w", err)
	}
	return rec, nil
}

// List returns every recorded sighting.
func (s *Store) List() ([]Record, error) {
	var records []Record
	err := s.db.View(func(txn *badger.Txn) error {
		iter := txn.NewIterator(badger.DefaultIteratorOptions)
		defer iter.Close()
		prefix := []byte("devices/")
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			var rec Record
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			if id, err := hiddev.ParseIdentity(rec.ID); err == nil {
				rec.Identity = id
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sightings: %w", err)
	}
	return records, nil
}
