// Package store keeps the server's own records (event subscriptions, address watches and
// transaction builder sessions) behind one small keyed interface, so they survive in a
// bolt file or redis instead of living in process globals.
package store

import (
	"context"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/tansive/minima-mcp/internal/common/apperrors"
)

var (
	ErrStore        apperrors.Error = apperrors.New("store error")
	ErrNotFound     apperrors.Error = ErrStore.New("record not found").SetStatusCode(404)
	ErrInvalidKey   apperrors.Error = ErrStore.New("invalid collection or id").SetStatusCode(400)
	ErrCodec        apperrors.Error = ErrStore.New("unable to encode or decode record")
	ErrUnavailable  apperrors.Error = ErrStore.New("store unavailable")
	ErrUnknownStore apperrors.Error = ErrStore.New("unknown store backend")
)

// Collections used by the server.
const (
	Subscriptions = "subscriptions"
	Watches       = "watches"
	Transactions  = "transactions"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one stored value in its encoded form.
type Record struct {
	ID    string
	Value []byte
}

// Decode unmarshals the record value into v.
func (r Record) Decode(v any) error {
	if err := json.Unmarshal(r.Value, v); err != nil {
		return ErrCodec.MsgErr("unable to decode record "+r.ID, err)
	}
	return nil
}

// Store is a set of named collections of JSON encoded values. Implementations are safe for
// concurrent use. Values are copied in and out, so callers never share memory with the store.
type Store interface {
	// Put creates or replaces a record.
	Put(ctx context.Context, collection, id string, v any) error
	// Get decodes a record into v, or returns ErrNotFound.
	Get(ctx context.Context, collection, id string, v any) error
	// Delete removes a record, or returns ErrNotFound.
	Delete(ctx context.Context, collection, id string) error
	// List returns every record of a collection ordered by id.
	List(ctx context.Context, collection string) ([]Record, error)
	Close() error
}

// ListAs decodes every record of a collection.
func ListAs[T any](ctx context.Context, s Store, collection string) ([]T, error) {
	recs, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		var v T
		if err := r.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func encode(id string, v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, ErrCodec.MsgErr("unable to encode record "+id, err)
	}
	return b, nil
}

func decode(id string, b []byte, v any) error {
	return Record{ID: id, Value: b}.Decode(v)
}

func checkKey(collection, id string) error {
	if collection == "" || id == "" {
		return ErrInvalidKey
	}
	return nil
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}

// Options selects and configures a backend.
type Options struct {
	Backend       string // memory, bolt or redis
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// Open creates the backend named by opts.Backend. An empty backend means memory.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "bolt":
		return NewBoltStore(opts.Path)
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
			Prefix:   opts.KeyPrefix,
		})
	default:
		return nil, ErrUnknownStore.Msgf("unknown store backend %q", opts.Backend)
	}
}
