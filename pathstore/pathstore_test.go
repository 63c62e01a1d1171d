package pathstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pce/etcd/etcdtest"
)

// fakeRedis answers the handful of commands RedisStore sends.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  map[string]int
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string][]byte), ttl: make(map[string]int)}
}

func (f *fakeRedis) Close() error { return nil }
func (f *fakeRedis) Err() error   { return nil }
func (f *fakeRedis) Send(string, ...interface{}) error {
	return nil
}
func (f *fakeRedis) Flush() error                 { return nil }
func (f *fakeRedis) Receive() (interface{}, error) { return nil, nil }

func (f *fakeRedis) Do(cmd string, args ...interface{}) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cmd == "" {
		return nil, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	key := args[0].(string)
	switch cmd {
	case "GET":
		v, ok := f.data[key]
		if !ok {
			return nil, nil
		}
		return v, nil
	case "SET":
		f.data[key] = args[1].([]byte)
		if len(args) == 4 {
			f.ttl[key] = args[3].(int)
		}
		return "OK", nil
	case "DEL":
		delete(f.data, key)
		return int64(1), nil
	}
	return nil, fmt.Errorf("unexpected command %s", cmd)
}

func redisStore(conn *fakeRedis, ttl time.Duration) *RedisStore {
	pool := &redis.Pool{Dial: func() (redis.Conn, error) { return conn, nil }}
	return NewRedisStore(pool, ttl)
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	stores := map[string]Store{
		"memory": NewMemoryStore(),
		"etcd":   NewEtcdStore(etcdtest.New()),
		"redis":  redisStore(newFakeRedis(), 0),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			_, found, err := store.GetPath(ctx, "svc-1")
			require.NoError(t, err)
			assert.False(t, found)

			nodes := []string{"XPDR-A-XPDR1", "ROADM-A-SRG1", "ROADM-A-DEG1"}
			require.NoError(t, store.PutPath(ctx, "svc-1", nodes))

			got, found, err := store.GetPath(ctx, "svc-1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, nodes, got)

			require.NoError(t, store.PutPath(ctx, "svc-1", nodes[:1]))
			got, _, err = store.GetPath(ctx, "svc-1")
			require.NoError(t, err)
			assert.Equal(t, nodes[:1], got)

			require.NoError(t, store.DeletePath(ctx, "svc-1"))
			_, found, err = store.GetPath(ctx, "svc-1")
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	nodes := []string{"A", "B"}
	require.NoError(t, store.PutPath(ctx, "svc", nodes))
	nodes[0] = "X"

	got, _, _ := store.GetPath(ctx, "svc")
	assert.Equal(t, []string{"A", "B"}, got)
	got[1] = "Y"
	again, _, _ := store.GetPath(ctx, "svc")
	assert.Equal(t, []string{"A", "B"}, again)
}

func TestEtcdStoreKeysAndErrors(t *testing.T) {
	ctx := context.Background()
	kv := etcdtest.New()
	store := NewEtcdStore(kv)

	require.NoError(t, store.PutPath(ctx, "svc-9", []string{"N1"}))
	raw, ok := kv.Value(PathPrefix + "svc-9")
	require.True(t, ok)
	assert.Contains(t, raw, `"service_name":"svc-9"`)

	_, err := kv.Put(ctx, PathPrefix+"broken", "{not json")
	require.NoError(t, err)
	_, _, err = store.GetPath(ctx, "broken")
	assert.Error(t, err)

	kv.FailWith = etcdtest.ErrUnavailable
	_, _, err = store.GetPath(ctx, "svc-9")
	assert.ErrorIs(t, err, etcdtest.ErrUnavailable)
	assert.ErrorIs(t, store.PutPath(ctx, "svc-9", nil), etcdtest.ErrUnavailable)
}

func TestRedisStoreTTLAndErrors(t *testing.T) {
	ctx := context.Background()
	conn := newFakeRedis()
	store := redisStore(conn, 90*time.Second)

	require.NoError(t, store.PutPath(ctx, "svc-2", []string{"N1", "N2"}))
	assert.Equal(t, 90, conn.ttl[redisKeyPrefix+"svc-2"])

	conn.err = errors.New("connection reset")
	_, _, err := store.GetPath(ctx, "svc-2")
	assert.Error(t, err)
	assert.Error(t, store.DeletePath(ctx, "svc-2"))
}
