// Package redisstore implements the cache store on top of Redis, as an
// alternative to the SQL repository for deployments that already run Redis.
//
// Each entry is one string key holding the JSON-encoded row. Creation uses
// SET NX so the (object_id, object_type) uniqueness guarantee holds across
// gateway replicas exactly as the SQL unique index does.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/files-cache-gateway/internal/domain"
	"github.com/tbourn/files-cache-gateway/internal/repo"
)

// KeyPrefix namespaces cache entries inside the Redis keyspace.
const KeyPrefix = "cached_file:"

// RedisClient is the subset of the go-redis client the store needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

var _ RedisClient = (*redis.Client)(nil)

// Store is a Redis-backed cache store.
type Store struct {
	client RedisClient
	now    func() time.Time
}

// New returns a Store using client.
func New(client RedisClient) *Store {
	return &Store{client: client, now: time.Now}
}

// Dial parses a redis:// URL, connects and verifies the connection.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

// Key returns the Redis key for an entry.
func Key(objectID int, objectType string) string {
	return KeyPrefix + strconv.Itoa(objectID) + ":" + objectType
}

// record is the stored JSON form. CachedFile hides CreatedAt from JSON, so
// it is carried separately.
type record struct {
	ObjectID   int       `json:"object_id"`
	ObjectType string    `json:"object_type"`
	ChatID     int64     `json:"chat_id"`
	MessageID  int64     `json:"message_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r record) cachedFile() *domain.CachedFile {
	return &domain.CachedFile{
		ObjectID:   r.ObjectID,
		ObjectType: r.ObjectType,
		ChatID:     r.ChatID,
		MessageID:  r.MessageID,
		CreatedAt:  r.CreatedAt,
	}
}

func decode(data string) (*domain.CachedFile, error) {
	var r record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("decode cached file: %w", err)
	}
	return r.cachedFile(), nil
}

// Find returns the entry, or repo.ErrNotFound.
func (s *Store) Find(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error) {
	data, err := s.client.Get(ctx, Key(objectID, objectType)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, repo.ErrNotFound
		}
		return nil, fmt.Errorf("error accessing redis: %w", err)
	}
	return decode(data)
}

// Create stores a new entry, or returns repo.ErrDuplicate if the key is
// already taken.
func (s *Store) Create(ctx context.Context, objectID int, objectType string, ptr domain.Pointer) (*domain.CachedFile, error) {
	r := record{
		ObjectID:   objectID,
		ObjectType: objectType,
		ChatID:     ptr.ChatID,
		MessageID:  ptr.MessageID,
		CreatedAt:  s.now().UTC(),
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	ok, err := s.client.SetNX(ctx, Key(objectID, objectType), string(data), 0).Result()
	if err != nil {
		return nil, fmt.Errorf("error accessing redis: %w", err)
	}
	if !ok {
		return nil, repo.ErrDuplicate
	}
	return r.cachedFile(), nil
}

// Delete removes the entry atomically and returns it, or nil when absent.
func (s *Store) Delete(ctx context.Context, objectID int, objectType string) (*domain.CachedFile, error) {
	data, err := s.client.GetDel(ctx, Key(objectID, objectType)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("error accessing redis: %w", err)
	}
	return decode(data)
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
