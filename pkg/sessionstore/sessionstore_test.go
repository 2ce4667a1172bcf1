package sessionstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStoreWithClient(client, "", ttl), mr
}

// runStoreContract exercises behavior both backends share.
func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()
	established := time.UnixMilli(1_700_000_000_000)

	_, err := s.Get(ctx, "Device1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Touch(ctx, "Device1", 1, established), ErrNotFound)

	rec := NewRecord("Device1", "AP1", "aes-256-gcm", "48d30aad", established)
	require.NoError(t, s.Put(ctx, rec))
	require.NoError(t, s.Put(ctx, NewRecord("Device0", "AP1", "aes-256-gcm", "aa", established)))

	got, err := s.Get(ctx, "Device1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "AP1", got.APBSSID)
	assert.Equal(t, "48d30aad", got.KeyFingerprint)
	assert.Equal(t, established.UnixMilli(), got.EstablishedAt)
	assert.Zero(t, got.Frames)

	later := established.Add(2 * time.Second)
	require.NoError(t, s.Touch(ctx, "Device1", 1, established.Add(time.Second)))
	require.NoError(t, s.Touch(ctx, "Device1", 2, later))

	got, err = s.Get(ctx, "Device1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Frames)
	assert.Equal(t, int64(2), got.LastSeq)
	assert.Equal(t, later.UnixMilli(), got.LastSeen)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Device0", list[0].DeviceID)
	assert.Equal(t, "Device1", list[1].DeviceID)

	// A new handshake replaces the record and its counters.
	fresh := NewRecord("Device1", "AP1", "chacha20-poly1305", "bb", later)
	require.NoError(t, s.Put(ctx, fresh))
	got, err = s.Get(ctx, "Device1")
	require.NoError(t, err)
	assert.Equal(t, fresh.ID, got.ID)
	assert.Zero(t, got.Frames)
	assert.Equal(t, "chacha20-poly1305", got.Suite)

	require.NoError(t, s.Delete(ctx, "Device1"))
	require.NoError(t, s.Delete(ctx, "Device1"))
	_, err = s.Get(ctx, "Device1")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	s, _ := newRedisStore(t, 0)
	runStoreContract(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	runStoreContract(t, s)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, NewRecord("Device1", "AP1", "aes-256-gcm", "aa", time.Now())))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "Device1")
	require.NoError(t, err)
	assert.Equal(t, "aa", got.KeyFingerprint)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Put(ctx, NewRecord("Device1", "AP1", "aes-256-gcm", "aa", time.Now())))

	got, err := s.Get(ctx, "Device1")
	require.NoError(t, err)
	got.Frames = 99

	again, err := s.Get(ctx, "Device1")
	require.NoError(t, err)
	assert.Zero(t, again.Frames)
}

func TestRedisStore_KeyLayout(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 0)

	require.NoError(t, s.Put(ctx, NewRecord("Device1", "AP1", "aes-256-gcm", "48d30aad", time.Now())))

	assert.Equal(t, "Device1", mr.HGet("wifisim:session:Device1", "device_id"))
	assert.Equal(t, "48d30aad", mr.HGet("wifisim:session:Device1", "key_fp"))
	members, err := mr.Members("wifisim:sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"Device1"}, members)
}

func TestRedisStore_TouchAfterExpiryLeavesNoRecord(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Minute)

	require.NoError(t, s.Put(ctx, NewRecord("Device1", "AP1", "aes-256-gcm", "aa", time.Now())))
	// The hash expires while its index entry is still present.
	mr.Del("wifisim:session:Device1")

	assert.ErrorIs(t, s.Touch(ctx, "Device1", 7, time.Now()), ErrNotFound)
	assert.False(t, mr.Exists("wifisim:session:Device1"))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRedisStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, time.Minute)

	require.NoError(t, s.Put(ctx, NewRecord("Device1", "AP1", "aes-256-gcm", "aa", time.Now())))
	assert.Equal(t, time.Minute, mr.TTL("wifisim:session:Device1"))

	mr.FastForward(30 * time.Second)
	require.NoError(t, s.Touch(ctx, "Device1", 1, time.Now()))
	assert.Equal(t, time.Minute, mr.TTL("wifisim:session:Device1"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Get(ctx, "Device1")
	assert.ErrorIs(t, err, ErrNotFound)

	// The stale index entry is pruned on listing.
	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, mr.Exists("wifisim:sessions"))
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t, 0)
	mr.Close()

	assert.ErrorIs(t, s.Ping(ctx), ErrUnavailable)
	assert.ErrorIs(t, s.Put(ctx, NewRecord("Device1", "AP1", "aes-256-gcm", "aa", time.Now())), ErrUnavailable)
	_, err := s.Get(ctx, "Device1")
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = s.List(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
}
