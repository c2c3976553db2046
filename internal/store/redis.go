package store

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key namespace, "minima-mcp" when empty
}

// RedisStore keeps each record under <prefix>:<collection>:<id> and the ids of a
// collection in the set <prefix>:<collection>.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if opts.Addr == "" {
		return nil, ErrUnavailable.Msg("redis store requires an address")
	}
	if opts.Prefix == "" {
		opts.Prefix = "minima-mcp"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, ErrUnavailable.MsgErr("failed to connect to redis at "+opts.Addr, err)
	}
	return &RedisStore{client: client, prefix: opts.Prefix}, nil
}

func (s *RedisStore) indexKey(collection string) string {
	return s.prefix + ":" + collection
}

func (s *RedisStore) recordKey(collection, id string) string {
	return s.prefix + ":" + collection + ":" + id
}

func (s *RedisStore) Put(ctx context.Context, collection, id string, v any) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	b, err := encode(id, v)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.recordKey(collection, id), b, 0)
		p.SAdd(ctx, s.indexKey(collection), id)
		return nil
	})
	if err != nil {
		return ErrUnavailable.MsgErr("unable to write "+collection+" "+id, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, collection, id string, v any) error {
	b, err := s.client.Get(ctx, s.recordKey(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound.Msgf("%s %s not found", collection, id)
	}
	if err != nil {
		return ErrUnavailable.MsgErr("unable to read "+collection+" "+id, err)
	}
	return decode(id, b, v)
}

func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, s.recordKey(collection, id))
		p.SRem(ctx, s.indexKey(collection), id)
		return nil
	})
	if err != nil {
		return ErrUnavailable.MsgErr("unable to delete "+collection+" "+id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound.Msgf("%s %s not found", collection, id)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, collection string) ([]Record, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, ErrUnavailable.MsgErr("unable to list "+collection, err)
	}
	if len(ids) == 0 {
		return []Record{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(collection, id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, ErrUnavailable.MsgErr("unable to list "+collection, err)
	}
	recs := make([]Record, 0, len(ids))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Index entry without a record: deleted between SMEMBERS and MGET.
			continue
		}
		recs = append(recs, Record{ID: ids[i], Value: []byte(str)})
	}
	sortRecords(recs)
	return recs, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
