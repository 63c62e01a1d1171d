package routing

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ComputeAll answers a batch of requests. Results come back in request order.
// Without a pool, or when the pool refuses a task, requests run in the
// calling goroutine.
func (o *Orchestrator) ComputeAll(ctx context.Context, reqs []*PathComputationRequest) []*Response {
	results := make([]*Response, len(reqs))
	if len(reqs) == 0 {
		return results
	}

	if o.pool == nil {
		log.Infof("ComputeAll: no goroutine pool, computing %d requests sequentially", len(reqs))
		for i, req := range reqs {
			results[i] = o.Compute(ctx, req)
		}
		return results
	}

	log.Infof("ComputeAll: computing %d requests using goroutine pool", len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		idx, request := i, req

		err := o.pool.Submit(func() {
			defer wg.Done()
			results[idx] = o.Compute(ctx, request)
		})
		if err != nil {
			log.Warnf("ComputeAll: failed to submit request %d: %v, computing inline", idx, err)
			results[idx] = o.Compute(ctx, request)
			wg.Done()
		}
	}

	wg.Wait()
	log.Infof("ComputeAll: completed %d requests", len(reqs))
	return results
}
