package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// BoltStore keeps each collection in its own bucket of a bolt file.
type BoltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens or creates the bolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if path == "" {
		return nil, ErrUnavailable.Msg("bolt store requires a file path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, ErrUnavailable.MsgErr("could not create dir for bolt store", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, ErrUnavailable.MsgErr("could not open bolt store "+path, err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Put(_ context.Context, collection, id string, v any) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	b, err := encode(id, v)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(collection))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), b)
	})
	if err != nil {
		return ErrUnavailable.MsgErr("unable to write "+collection+" "+id, err)
	}
	return nil
}

func (s *BoltStore) Get(_ context.Context, collection, id string, v any) error {
	var val []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return nil
		}
		if b := bucket.Get([]byte(id)); b != nil {
			// Values are only valid inside the transaction.
			val = append([]byte(nil), b...)
		}
		return nil
	})
	if err != nil {
		return ErrUnavailable.MsgErr("unable to read "+collection+" "+id, err)
	}
	if val == nil {
		return ErrNotFound.Msgf("%s %s not found", collection, id)
	}
	return decode(id, val, v)
}

var errMissing = errors.New("missing")

func (s *BoltStore) Delete(_ context.Context, collection, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil || bucket.Get([]byte(id)) == nil {
			return errMissing
		}
		return bucket.Delete([]byte(id))
	})
	if errors.Is(err, errMissing) {
		return ErrNotFound.Msgf("%s %s not found", collection, id)
	}
	if err != nil {
		return ErrUnavailable.MsgErr("unable to delete "+collection+" "+id, err)
	}
	return nil
}

func (s *BoltStore) List(_ context.Context, collection string) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(collection))
		if bucket == nil {
			return nil
		}
		// Cursor order is byte order, which is id order.
		return bucket.ForEach(func(k, v []byte) error {
			recs = append(recs, Record{ID: string(k), Value: append([]byte(nil), v...)})
			return nil
		})
	})
	if err != nil {
		return nil, ErrUnavailable.MsgErr("unable to list "+collection, err)
	}
	return recs, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
