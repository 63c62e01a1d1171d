package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	clientv3 "go.etcd.io/etcd/client/v3"

	"pce/metrics"
	"pce/path_computation/model"
	"pce/pathstore"
	"pce/routing"
)

const DefaultMaxConflictRetries = 3

// Computer answers a path computation request. *routing.Orchestrator is the
// production implementation.
type Computer interface {
	Compute(ctx context.Context, req *routing.PathComputationRequest) *routing.Response
}

// RequestWorker computes every request put under RequestPrefix and publishes
// the result under ResultPrefix. A conflict reported under ConflictPrefix
// reruns the request, at most maxConflictRetries times.
type RequestWorker struct {
	kv        clientv3.KV
	watcher   clientv3.Watcher
	computer  Computer
	publisher *ResultPublisher
	workerID  string

	paths              pathstore.Store
	refresh            func(context.Context) error
	metrics            *metrics.Registry
	maxConflictRetries int

	mu       sync.Mutex
	attempts map[string]int
	wg       sync.WaitGroup
}

type WorkerOption func(*RequestWorker)

// WithResultPaths stores the node list of every successful result.
func WithResultPaths(paths pathstore.Store) WorkerOption {
	return func(w *RequestWorker) { w.paths = paths }
}

// WithRefresh is called before a request is rerun after a conflict.
func WithRefresh(refresh func(context.Context) error) WorkerOption {
	return func(w *RequestWorker) { w.refresh = refresh }
}

func WithWorkerMetrics(m *metrics.Registry) WorkerOption {
	return func(w *RequestWorker) { w.metrics = m }
}

func WithMaxConflictRetries(n int) WorkerOption {
	return func(w *RequestWorker) { w.maxConflictRetries = n }
}

func NewRequestWorker(kv clientv3.KV, watcher clientv3.Watcher, computer Computer, opts ...WorkerOption) *RequestWorker {
	w := &RequestWorker{
		kv:                 kv,
		watcher:            watcher,
		computer:           computer,
		publisher:          NewResultPublisher(kv, watcher),
		workerID:           fmt.Sprintf("worker-%d", time.Now().Unix()),
		maxConflictRetries: DefaultMaxConflictRetries,
		attempts:           make(map[string]int),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start blocks until ctx is done. Requests already waiting when it starts are
// computed unless a result for them exists.
func (w *RequestWorker) Start(ctx context.Context) error {
	log.Infof("[%s] Worker starting...", w.workerID)

	requests := w.watcher.Watch(ctx, RequestPrefix, clientv3.WithPrefix())
	conflicts := w.watcher.Watch(ctx, ConflictPrefix, clientv3.WithPrefix())

	if err := w.processBacklog(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			log.Infof("[%s] Worker shutting down...", w.workerID)
			return nil

		case resp, ok := <-requests:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("request watch channel closed")
			}
			w.clearDeleted(resp.Events)
			w.dispatch(ctx, resp.Events, w.handleRequest)

		case resp, ok := <-conflicts:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("conflict watch channel closed")
			}
			w.dispatch(ctx, resp.Events, w.handleConflict)
		}
	}
}

// Wait blocks until every request handed out by Start has finished.
func (w *RequestWorker) Wait() {
	w.wg.Wait()
}

// clearDeleted drops the conflict counters of withdrawn requests.
func (w *RequestWorker) clearDeleted(events []*clientv3.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, event := range events {
		if event.Type == clientv3.EventTypeDelete {
			delete(w.attempts, strings.TrimPrefix(string(event.Kv.Key), RequestPrefix))
		}
	}
}

func (w *RequestWorker) dispatch(ctx context.Context, events []*clientv3.Event, handle func(context.Context, string, []byte)) {
	for _, event := range events {
		if event.Type != clientv3.EventTypePut {
			continue
		}
		w.wg.Add(1)
		go func(key string, value []byte) {
			defer w.wg.Done()
			handle(ctx, key, value)
		}(string(event.Kv.Key), event.Kv.Value)
	}
}

func (w *RequestWorker) processBacklog(ctx context.Context) error {
	resp, err := w.kv.Get(ctx, RequestPrefix, clientv3.WithPrefix())
	if err != nil {
		return fmt.Errorf("failed to list pending requests: %w", err)
	}
	for _, kv := range resp.Kvs {
		id := strings.TrimPrefix(string(kv.Key), RequestPrefix)
		done, err := w.kv.Get(ctx, ResultPrefix+id, clientv3.WithCountOnly())
		if err != nil {
			return fmt.Errorf("failed to look up result of %s: %w", id, err)
		}
		if done.Count > 0 {
			continue
		}
		log.Infof("[%s] Picking up pending request: %s", w.workerID, id)
		w.handleRequest(ctx, string(kv.Key), kv.Value)
	}
	return nil
}

func (w *RequestWorker) handleRequest(ctx context.Context, key string, value []byte) {
	req, err := decodeRequest(key, value)
	if err != nil {
		log.Errorf("[%s] %v", w.workerID, err)
		return
	}
	w.process(ctx, req, false)
}

// process computes req and publishes the result. An OK result of a fresh
// submission ends any earlier conflict sequence of the request id; a conflict
// retry keeps counting.
func (w *RequestWorker) process(ctx context.Context, req *routing.PathComputationRequest, retry bool) {
	log.Infof("[%s] Processing request: %s (service: %s)", w.workerID, req.RequestID, req.ServiceName)

	resp := w.computer.Compute(ctx, req)
	resp.RequestID = req.RequestID
	if err := w.publisher.PublishResult(ctx, resp); err != nil {
		log.Errorf("[%s] %v", w.workerID, err)
		return
	}
	if !resp.OK() {
		w.forgetPath(ctx, req.ServiceName)
		return
	}

	if !retry {
		w.mu.Lock()
		delete(w.attempts, req.RequestID)
		w.mu.Unlock()
	}

	if w.paths == nil {
		return
	}
	if err := w.paths.PutPath(ctx, req.ServiceName, resp.Nodes()); err != nil {
		log.Warningf("[%s] Failed to store path of %s: %v", w.workerID, req.ServiceName, err)
	}
}

// forgetPath drops the stored path of a service whose latest result failed,
// so diversity requests stop avoiding it.
func (w *RequestWorker) forgetPath(ctx context.Context, serviceName string) {
	if w.paths == nil || serviceName == "" {
		return
	}
	if err := w.paths.DeletePath(ctx, serviceName); err != nil {
		log.Warningf("[%s] Failed to drop path of %s: %v", w.workerID, serviceName, err)
	}
}

func (w *RequestWorker) handleConflict(ctx context.Context, key string, value []byte) {
	id := strings.TrimPrefix(key, ConflictPrefix)
	var conflict Conflict
	if err := json.Unmarshal(value, &conflict); err != nil {
		log.Warningf("[%s] Unreadable conflict for %s: %v", w.workerID, id, err)
	}
	if _, err := w.kv.Delete(ctx, key); err != nil {
		log.Warningf("[%s] Failed to clear conflict %s: %v", w.workerID, id, err)
	}

	resp, err := w.kv.Get(ctx, RequestPrefix+id)
	if err != nil {
		log.Errorf("[%s] Failed to read request %s: %v", w.workerID, id, err)
		return
	}
	if len(resp.Kvs) == 0 {
		log.Warningf("[%s] Conflict for unknown request %s, ignoring", w.workerID, id)
		return
	}
	req, err := decodeRequest(string(resp.Kvs[0].Key), resp.Kvs[0].Value)
	if err != nil {
		log.Errorf("[%s] %v", w.workerID, err)
		return
	}

	w.mu.Lock()
	w.attempts[id]++
	attempt := w.attempts[id]
	if attempt > w.maxConflictRetries {
		delete(w.attempts, id)
	}
	w.mu.Unlock()

	if attempt > w.maxConflictRetries {
		log.Warningf("[%s] Request %s conflicted %d times, giving up", w.workerID, id, attempt)
		failed := &routing.Response{
			RequestID:   id,
			ServiceName: req.ServiceName,
			PathResult: model.Failed(model.CauseNone,
				fmt.Sprintf("provisioning conflict not resolved after %d retries: %s", w.maxConflictRetries, conflict.Reason)),
		}
		if err := w.publisher.PublishResult(ctx, failed); err != nil {
			log.Errorf("[%s] %v", w.workerID, err)
			return
		}
		w.forgetPath(ctx, req.ServiceName)
		return
	}

	log.Infof("[%s] Conflict on %s (%s), retry %d of %d", w.workerID, id, conflict.Reason, attempt, w.maxConflictRetries)
	w.metrics.RecordConflictRetry()
	if w.refresh != nil {
		if err := w.refresh(ctx); err != nil {
			log.Warningf("[%s] Topology refresh before retry failed: %v", w.workerID, err)
		}
	}
	w.process(ctx, req, true)
}

// decodeRequest takes the request id from the key.
func decodeRequest(key string, value []byte) (*routing.PathComputationRequest, error) {
	var req routing.PathComputationRequest
	if err := json.Unmarshal(value, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request %s: %w", key, err)
	}
	req.RequestID = strings.TrimPrefix(key, RequestPrefix)
	return &req, nil
}
