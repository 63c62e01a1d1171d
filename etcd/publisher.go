package etcd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	clientv3 "go.etcd.io/etcd/client/v3"

	"pce/routing"
)

const (
	RequestPrefix  = "/pce/requests/"
	ResultPrefix   = "/pce/results/"
	ConflictPrefix = "/pce/conflicts/"
)

var ErrResultNotFound = errors.New("etcd: no result for request")

type EtcdConfig struct {
	Endpoints   []string `toml:"endpoints" validate:"required,min=1,dive,required"`
	DialTimeout int      `toml:"dial_timeout" validate:"min=0"` // seconds
}

func DefaultEtcdConfig() EtcdConfig {
	return EtcdConfig{
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5,
	}
}

func NewClient(config EtcdConfig) (*clientv3.Client, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: time.Duration(config.DialTimeout) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return client, nil
}

// Conflict is written by provisioning when the resources of a published
// result were taken before they could be set up.
type Conflict struct {
	RequestID  string    `json:"request_id"`
	Reason     string    `json:"reason,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
}

// ResultPublisher is the etcd side of the provisioning hand-off.
type ResultPublisher struct {
	kv          clientv3.KV
	watcher     clientv3.Watcher
	publisherID string
}

func NewResultPublisher(kv clientv3.KV, watcher clientv3.Watcher) *ResultPublisher {
	return &ResultPublisher{
		kv:          kv,
		watcher:     watcher,
		publisherID: fmt.Sprintf("publisher-%d", time.Now().Unix()),
	}
}

// SubmitRequest queues req for the RequestWorker and returns its id.
func (p *ResultPublisher) SubmitRequest(ctx context.Context, req *routing.PathComputationRequest) (string, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := p.kv.Put(ctx, RequestPrefix+req.RequestID, string(data)); err != nil {
		return "", fmt.Errorf("failed to submit request %s: %w", req.RequestID, err)
	}
	log.Infof("[%s] Request submitted: %s (service: %s)", p.publisherID, req.RequestID, req.ServiceName)
	return req.RequestID, nil
}

func (p *ResultPublisher) PublishResult(ctx context.Context, resp *routing.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if _, err := p.kv.Put(ctx, ResultPrefix+resp.RequestID, string(data)); err != nil {
		return fmt.Errorf("failed to publish result %s: %w", resp.RequestID, err)
	}
	log.Infof("[%s] Result published: %s (code: %s)", p.publisherID, resp.RequestID, resp.ResponseCode)
	return nil
}

func (p *ResultPublisher) ReportConflict(ctx context.Context, conflict Conflict) error {
	if conflict.ReportedAt.IsZero() {
		conflict.ReportedAt = time.Now()
	}
	data, err := json.Marshal(conflict)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict: %w", err)
	}
	if _, err := p.kv.Put(ctx, ConflictPrefix+conflict.RequestID, string(data)); err != nil {
		return fmt.Errorf("failed to report conflict for %s: %w", conflict.RequestID, err)
	}
	return nil
}

func (p *ResultPublisher) GetResult(ctx context.Context, requestID string) (*routing.Response, error) {
	resp, err := p.kv.Get(ctx, ResultPrefix+requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, requestID)
	}
	return decodeResult(resp.Kvs[0].Value)
}

func (p *ResultPublisher) WatchResults(ctx context.Context, requestID string) <-chan *routing.Response {
	results := make(chan *routing.Response)
	watchChan := p.watcher.Watch(ctx, ResultPrefix+requestID)

	go func() {
		defer close(results)

		for wr := range watchChan {
			for _, event := range wr.Events {
				if event.Type != clientv3.EventTypePut {
					continue
				}
				result, err := decodeResult(event.Kv.Value)
				if err != nil {
					log.Warningf("Failed to unmarshal result: %v", err)
					continue
				}
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return results
}

// WaitForResult returns the next result published for requestID. A result
// already stored is returned without waiting.
func (p *ResultPublisher) WaitForResult(ctx context.Context, requestID string, timeout time.Duration) (*routing.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := p.WatchResults(ctx, requestID)
	if result, err := p.GetResult(ctx, requestID); err == nil {
		return result, nil
	}

	select {
	case result, ok := <-results:
		if ok {
			return result, nil
		}
		return nil, fmt.Errorf("result watch for %s closed: %w", requestID, ctx.Err())
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timeout waiting for result of %s", requestID)
		}
		return nil, ctx.Err()
	}
}

func decodeResult(data []byte) (*routing.Response, error) {
	var result routing.Response
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return &result, nil
}
