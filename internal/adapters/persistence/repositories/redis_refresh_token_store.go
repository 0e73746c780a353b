package repositories

import (
	"context"
	"strconv"
	"strings"
	"time"

	"mindfeed-auth/internal/pkg/password"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix namespaces refresh token keys
const DefaultRedisKeyPrefix = "mindfeed"

// redisRefreshTokenStore implements RefreshTokenStore on Redis. Each token is
// its own key with a native TTL, so expiry needs no sweeper; a per-user set
// indexes token hashes for RemoveAllForUser.
type redisRefreshTokenStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisRefreshTokenStore creates a Redis backed refresh token store
func NewRedisRefreshTokenStore(rdb redis.UniversalClient, prefix string) RefreshTokenStore {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &redisRefreshTokenStore{rdb: rdb, prefix: prefix}
}

func (s *redisRefreshTokenStore) tokenKey(userID uint, hash string) string {
	return s.prefix + ":refresh:" + strconv.FormatUint(uint64(userID), 10) + ":" + hash
}

func (s *redisRefreshTokenStore) indexKey(userID uint) string {
	return s.prefix + ":refresh-index:" + strconv.FormatUint(uint64(userID), 10)
}

// Store persists a refresh token valid for ttl
func (s *redisRefreshTokenStore) Store(ctx context.Context, userID uint, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	hash := password.HashToken(token)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(userID, hash), time.Now().Add(ttl).Unix(), ttl)
		pipe.SAdd(ctx, s.indexKey(userID), hash)
		return nil
	})
	return err
}

// IsValid reports whether the token key still exists
func (s *redisRefreshTokenStore) IsValid(ctx context.Context, userID uint, token string) (bool, error) {
	n, err := s.rdb.Exists(ctx, s.tokenKey(userID, password.HashToken(token))).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Remove deletes the token key and reports whether it existed. Missing keys
// are not an error.
func (s *redisRefreshTokenStore) Remove(ctx context.Context, userID uint, token string) (bool, error) {
	hash := password.HashToken(token)
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.tokenKey(userID, hash))
		pipe.SRem(ctx, s.indexKey(userID), hash)
		return nil
	})
	if err != nil {
		return false, err
	}
	return del.Val() > 0, nil
}

// RemoveAllForUser deletes every refresh token of a user. Only the index
// entries that were read are removed, so a token stored concurrently stays
// indexed and reachable by the next call.
func (s *redisRefreshTokenStore) RemoveAllForUser(ctx context.Context, userID uint) error {
	indexKey := s.indexKey(userID)
	hashes, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil || len(hashes) == 0 {
		return err
	}

	keys := make([]string, len(hashes))
	members := make([]interface{}, len(hashes))
	for i, h := range hashes {
		keys[i] = s.tokenKey(userID, h)
		members[i] = h
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.SRem(ctx, indexKey, members...)
		return nil
	})
	return err
}

// CountActive counts unexpired tokens of a user
func (s *redisRefreshTokenStore) CountActive(ctx context.Context, userID uint) (int64, error) {
	hashes, err := s.rdb.SMembers(ctx, s.indexKey(userID)).Result()
	if err != nil || len(hashes) == 0 {
		return 0, err
	}
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = s.tokenKey(userID, h)
	}
	return s.rdb.Exists(ctx, keys...).Result()
}

// PruneExpired drops index entries whose token key has already expired.
// Token keys themselves expire natively.
func (s *redisRefreshTokenStore) PruneExpired(ctx context.Context) (int64, error) {
	var pruned int64
	var cursor uint64
	pattern := s.prefix + ":refresh-index:*"

	for {
		indexKeys, next, err := s.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return pruned, err
		}
		for _, indexKey := range indexKeys {
			n, err := s.pruneIndex(ctx, indexKey)
			if err != nil {
				return pruned, err
			}
			pruned += n
		}
		if next == 0 {
			return pruned, nil
		}
		cursor = next
	}
}

func (s *redisRefreshTokenStore) pruneIndex(ctx context.Context, indexKey string) (int64, error) {
	rawID := strings.TrimPrefix(indexKey, s.prefix+":refresh-index:")
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		return 0, nil
	}
	userID := uint(id)

	hashes, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, err
	}
	var stale []interface{}
	for _, h := range hashes {
		n, err := s.rdb.Exists(ctx, s.tokenKey(userID, h)).Result()
		if err != nil {
			return 0, err
		}
		if n == 0 {
			stale = append(stale, h)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return s.rdb.SRem(ctx, indexKey, stale...).Result()
}
