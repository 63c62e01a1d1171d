// Package etcdtest provides an in-memory stand-in for the etcd KV and Watch
// APIs, covering what the pce packages call.
package etcdtest

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Client implements clientv3.KV and clientv3.Watcher. Methods outside the
// subset below panic through the nil embedded interfaces.
type Client struct {
	clientv3.KV
	clientv3.Watcher

	mu       sync.Mutex
	data     map[string][]byte
	revision int64
	watches  []*watch
	// FailWith makes every KV call return this error when set.
	FailWith error
}

type watch struct {
	key, end string
	ch       chan clientv3.WatchResponse
	ctx      context.Context
}

func New() *Client {
	return &Client{data: make(map[string][]byte)}
}

func inRange(k, key, end string) bool {
	if end == "" {
		return k == key
	}
	return k >= key && (end == "\x00" || k < end)
}

func (c *Client) Put(_ context.Context, key, val string, _ ...clientv3.OpOption) (*clientv3.PutResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWith != nil {
		return nil, c.FailWith
	}
	c.revision++
	c.data[key] = []byte(val)
	c.notify(mvccpb.PUT, key, []byte(val))
	return &clientv3.PutResponse{}, nil
}

func (c *Client) Get(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.GetResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWith != nil {
		return nil, c.FailWith
	}
	end := string(clientv3.OpGet(key, opts...).RangeBytes())
	var keys []string
	for k := range c.data {
		if inRange(k, key, end) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	resp := &clientv3.GetResponse{Count: int64(len(keys))}
	for _, k := range keys {
		resp.Kvs = append(resp.Kvs, &mvccpb.KeyValue{Key: []byte(k), Value: append([]byte(nil), c.data[k]...)})
	}
	return resp, nil
}

func (c *Client) Delete(_ context.Context, key string, opts ...clientv3.OpOption) (*clientv3.DeleteResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailWith != nil {
		return nil, c.FailWith
	}
	end := string(clientv3.OpDelete(key, opts...).RangeBytes())
	resp := &clientv3.DeleteResponse{}
	for k := range c.data {
		if inRange(k, key, end) {
			delete(c.data, k)
			resp.Deleted++
			c.notify(mvccpb.DELETE, k, nil)
		}
	}
	return resp, nil
}

func (c *Client) Watch(ctx context.Context, key string, opts ...clientv3.OpOption) clientv3.WatchChan {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := &watch{
		key: key,
		end: string(clientv3.OpGet(key, opts...).RangeBytes()),
		ch:  make(chan clientv3.WatchResponse, 64),
		ctx: ctx,
	}
	c.watches = append(c.watches, w)
	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, other := range c.watches {
			if other == w {
				c.watches = append(c.watches[:i], c.watches[i+1:]...)
				break
			}
		}
		close(w.ch)
	}()
	return w.ch
}

// Value returns the stored value of key.
func (c *Client) Value(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return string(v), ok
}

func (c *Client) notify(typ mvccpb.Event_EventType, key string, val []byte) {
	for _, w := range c.watches {
		if w.ctx.Err() != nil || !inRange(key, w.key, w.end) {
			continue
		}
		ev := &clientv3.Event{Type: typ, Kv: &mvccpb.KeyValue{Key: []byte(key), Value: val, ModRevision: c.revision}}
		select {
		case w.ch <- clientv3.WatchResponse{Events: []*clientv3.Event{ev}}:
		default:
		}
	}
}

var ErrUnavailable = errors.New("etcdserver: request timed out")
