package tiles

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/royalcat/rgeotile/geomodel"
)

// RedisStore reads tile files stored as plain string values, one key per tile path.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ext    string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient, prefix, ext string) *RedisStore {
	if ext == "" {
		ext = DefaultExt
	}
	return &RedisStore{client: client, prefix: prefix, ext: ext}
}

func (s *RedisStore) Key(addr Address) string {
	return s.prefix + TilePath(addr, s.ext)
}

func (s *RedisStore) Load(ctx context.Context, addr Address) ([]geomodel.Place, error) {
	raw, err := s.client.Get(ctx, s.Key(addr)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &TileError{Addr: addr, Kind: ErrStorageRead, Err: err}
	}

	return decodeTile(addr, s.ext, raw)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
