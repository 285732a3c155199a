package redisstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/files-cache-gateway/internal/domain"
	"github.com/tbourn/files-cache-gateway/internal/redisstore"
	"github.com/tbourn/files-cache-gateway/internal/repo"
)

type MockRedis struct {
	data   map[string]string
	errGet error
	errSet error
	errDel error
}

var _ redisstore.RedisClient = (*MockRedis)(nil)

func NewMockRedis() *MockRedis {
	return &MockRedis{data: make(map[string]string)}
}

func (m *MockRedis) Get(ctx context.Context, key string) *goredis.StringCmd {
	cmd := goredis.NewStringCmd(ctx)
	if m.errGet != nil {
		cmd.SetErr(m.errGet)
		return cmd
	}
	v, ok := m.data[key]
	if !ok {
		cmd.SetErr(goredis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (m *MockRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *goredis.BoolCmd {
	cmd := goredis.NewBoolCmd(ctx)
	if m.errSet != nil {
		cmd.SetErr(m.errSet)
		return cmd
	}
	if _, ok := m.data[key]; ok {
		cmd.SetVal(false)
		return cmd
	}
	m.data[key] = value.(string)
	cmd.SetVal(true)
	return cmd
}

func (m *MockRedis) GetDel(ctx context.Context, key string) *goredis.StringCmd {
	cmd := goredis.NewStringCmd(ctx)
	if m.errDel != nil {
		cmd.SetErr(m.errDel)
		return cmd
	}
	v, ok := m.data[key]
	if !ok {
		cmd.SetErr(goredis.Nil)
		return cmd
	}
	delete(m.data, key)
	cmd.SetVal(v)
	return cmd
}

func (m *MockRedis) Ping(ctx context.Context) *goredis.StatusCmd {
	cmd := goredis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func TestKey(t *testing.T) {
	require.Equal(t, "cached_file:42:epub", redisstore.Key(42, "epub"))
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := NewMockRedis()
	s := redisstore.New(mock)

	_, err := s.Find(ctx, 1, "fb2")
	require.ErrorIs(t, err, repo.ErrNotFound)

	ptr := domain.Pointer{ChatID: -100, MessageID: 7}
	created, err := s.Create(ctx, 1, "fb2", ptr)
	require.NoError(t, err)
	require.Equal(t, ptr, created.Pointer())
	require.False(t, created.CreatedAt.IsZero())
	require.Contains(t, mock.data, "cached_file:1:fb2")

	got, err := s.Find(ctx, 1, "fb2")
	require.NoError(t, err)
	require.Equal(t, 1, got.ObjectID)
	require.Equal(t, "fb2", got.ObjectType)
	require.Equal(t, ptr, got.Pointer())

	_, err = s.Create(ctx, 1, "fb2", domain.Pointer{ChatID: 1, MessageID: 1})
	require.ErrorIs(t, err, repo.ErrDuplicate)

	deleted, err := s.Delete(ctx, 1, "fb2")
	require.NoError(t, err)
	require.Equal(t, ptr, deleted.Pointer())
	require.Empty(t, mock.data)

	deleted, err = s.Delete(ctx, 1, "fb2")
	require.NoError(t, err)
	require.Nil(t, deleted)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("connection refused")

	mock := NewMockRedis()
	mock.errGet, mock.errSet, mock.errDel = boom, boom, boom
	s := redisstore.New(mock)

	_, err := s.Find(ctx, 1, "fb2")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, repo.ErrNotFound)

	_, err = s.Create(ctx, 1, "fb2", domain.Pointer{ChatID: 1, MessageID: 1})
	require.ErrorIs(t, err, boom)

	_, err = s.Delete(ctx, 1, "fb2")
	require.ErrorIs(t, err, boom)
}

func TestStore_CorruptValue(t *testing.T) {
	mock := NewMockRedis()
	mock.data[redisstore.Key(3, "pdf")] = "{not json"

	_, err := redisstore.New(mock).Find(context.Background(), 3, "pdf")
	require.Error(t, err)
}

func TestStore_Ping(t *testing.T) {
	require.NoError(t, redisstore.New(NewMockRedis()).Ping(context.Background()))
}
