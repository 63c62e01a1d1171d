package etcd

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pce/etcd/etcdtest"
	"pce/metrics"
	"pce/path_computation/model"
	"pce/pathstore"
	"pce/routing"
	"pce/topology"
	"pce/topology/topologytest"
)

type staticStore struct {
	network *topology.Network
}

func (s staticStore) Read(context.Context) (*topology.Network, error) {
	return s.network.Copy(), nil
}

type countingComputer struct {
	mu    sync.Mutex
	calls int
	code  model.ResponseCode
}

func (c *countingComputer) Compute(_ context.Context, req *routing.PathComputationRequest) *routing.Response {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	res := &model.PathResult{ResponseCode: model.ResponseOK, LocalCause: model.CauseNone, Wavelength: 1}
	if c.code == model.ResponseFailed {
		res = model.Failed(model.CauseNoPathExists, "no path")
	}
	return &routing.Response{RequestID: req.RequestID, ServiceName: req.ServiceName, PathResult: res}
}

func (c *countingComputer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func lambdaRequest(id, name string) *routing.PathComputationRequest {
	return &routing.PathComputationRequest{
		RequestID:   id,
		ServiceName: name,
		ServiceAEnd: routing.Endpoint{NodeID: "XPDR-A", ServiceFormat: model.FormatEthernet, ServiceRate: 100},
		ServiceZEnd: routing.Endpoint{NodeID: "XPDR-Z", ServiceFormat: model.FormatEthernet, ServiceRate: 100},
	}
}

func putRequest(t *testing.T, client *etcdtest.Client, req *routing.PathComputationRequest) {
	t.Helper()
	data, err := json.Marshal(req)
	require.NoError(t, err)
	_, err = client.Put(context.Background(), RequestPrefix+req.RequestID, string(data))
	require.NoError(t, err)
}

// startWorker runs w until the test ends.
func startWorker(t *testing.T, w *RequestWorker) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
		w.Wait()
	})
}

func TestWorkerComputesSubmittedRequest(t *testing.T) {
	client := etcdtest.New()
	paths := pathstore.NewMemoryStore()
	orchestrator := routing.NewOrchestrator(staticStore{network: topologytest.Chain(topologytest.Wavelengths(9, 96), 1).Network()})
	startWorker(t, NewRequestWorker(client, client, orchestrator, WithResultPaths(paths)))

	publisher := NewResultPublisher(client, client)
	id, err := publisher.SubmitRequest(context.Background(), lambdaRequest("", "svc-1"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	result, err := publisher.WaitForResult(context.Background(), id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, result.RequestID)
	assert.Equal(t, "svc-1", result.ServiceName)
	require.True(t, result.OK(), result.Message)
	assert.Equal(t, 9, result.Wavelength)
	require.NotNil(t, result.AToZ)
	assert.NotEmpty(t, result.AToZ.Resources)

	assert.Eventually(t, func() bool {
		nodes, found, _ := paths.GetPath(context.Background(), "svc-1")
		return found && len(nodes) > 0 && nodes[0] == "XPDR-A-XPDR1"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerBacklog(t *testing.T) {
	client := etcdtest.New()
	putRequest(t, client, lambdaRequest("pending", "svc-1"))
	putRequest(t, client, lambdaRequest("answered", "svc-2"))
	_, err := client.Put(context.Background(), ResultPrefix+"answered", `{"request_id":"answered"}`)
	require.NoError(t, err)
	_, err = client.Put(context.Background(), RequestPrefix+"garbled", "{not json")
	require.NoError(t, err)

	computer := &countingComputer{}
	startWorker(t, NewRequestWorker(client, client, computer))

	publisher := NewResultPublisher(client, client)
	assert.Eventually(t, func() bool {
		_, err := publisher.GetResult(context.Background(), "pending")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, computer.Calls())

	_, err = publisher.GetResult(context.Background(), "garbled")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestWorkerFailedResultIsNotStored(t *testing.T) {
	client := etcdtest.New()
	paths := pathstore.NewMemoryStore()
	putRequest(t, client, lambdaRequest("r1", "svc-1"))
	startWorker(t, NewRequestWorker(client, client, &countingComputer{code: model.ResponseFailed}, WithResultPaths(paths)))

	result, err := NewResultPublisher(client, client).WaitForResult(context.Background(), "r1", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, model.ResponseFailed, result.ResponseCode)
	assert.Equal(t, model.CauseNoPathExists, result.LocalCause)

	_, found, err := paths.GetPath(context.Background(), "svc-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWorkerConflictRetries(t *testing.T) {
	ctx := context.Background()
	client := etcdtest.New()
	computer := &countingComputer{}
	m := metrics.NewRegistry()
	var refreshes sync.WaitGroup
	refreshes.Add(1)
	refresh := func(context.Context) error {
		refreshes.Done()
		return nil
	}

	putRequest(t, client, lambdaRequest("r1", "svc-1"))
	w := NewRequestWorker(client, client, computer,
		WithMaxConflictRetries(1), WithRefresh(refresh), WithWorkerMetrics(m))
	startWorker(t, w)

	publisher := NewResultPublisher(client, client)
	_, err := publisher.WaitForResult(ctx, "r1", 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, computer.Calls())

	require.NoError(t, publisher.ReportConflict(ctx, Conflict{RequestID: "r1", Reason: "wavelength 1 taken"}))
	assert.Eventually(t, func() bool { return computer.Calls() == 2 }, 2*time.Second, 10*time.Millisecond)
	refreshes.Wait()
	assert.Eventually(t, func() bool {
		_, ok := client.Value(ConflictPrefix + "r1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConflictRetries))

	require.NoError(t, publisher.ReportConflict(ctx, Conflict{RequestID: "r1", Reason: "wavelength 1 taken again"}))
	assert.Eventually(t, func() bool {
		result, err := publisher.GetResult(ctx, "r1")
		return err == nil && result.ResponseCode == model.ResponseFailed
	}, 2*time.Second, 10*time.Millisecond)

	result, err := publisher.GetResult(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, model.CauseNone, result.LocalCause)
	assert.Contains(t, result.Message, "wavelength 1 taken again")
	assert.Equal(t, 2, computer.Calls())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConflictRetries))
}

func TestWorkerIgnoresConflictForUnknownRequest(t *testing.T) {
	ctx := context.Background()
	client := etcdtest.New()
	computer := &countingComputer{}
	putRequest(t, client, lambdaRequest("r1", "svc-1"))
	startWorker(t, NewRequestWorker(client, client, computer))

	publisher := NewResultPublisher(client, client)
	_, err := publisher.WaitForResult(ctx, "r1", 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, publisher.ReportConflict(ctx, Conflict{RequestID: "ghost"}))
	assert.Eventually(t, func() bool {
		_, ok := client.Value(ConflictPrefix + "ghost")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	_, err = publisher.GetResult(ctx, "ghost")
	assert.ErrorIs(t, err, ErrResultNotFound)
	assert.Equal(t, 1, computer.Calls())
}

func TestWorkerStartFailsWhenBacklogUnreadable(t *testing.T) {
	client := etcdtest.New()
	client.FailWith = etcdtest.ErrUnavailable
	w := NewRequestWorker(client, client, &countingComputer{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	err := w.Start(ctx)
	assert.ErrorIs(t, err, etcdtest.ErrUnavailable)
}

func attemptsOf(w *RequestWorker, id string) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, ok := w.attempts[id]
	return n, ok
}

func TestWorkerFailedResultDropsStoredPath(t *testing.T) {
	ctx := context.Background()
	client := etcdtest.New()
	paths := pathstore.NewMemoryStore()
	require.NoError(t, paths.PutPath(ctx, "svc-1", []string{"XPDR-A-XPDR1", "XPDR-Z-XPDR1"}))
	require.NoError(t, paths.PutPath(ctx, "svc-2", []string{"XPDR-B-XPDR1"}))

	putRequest(t, client, lambdaRequest("r1", "svc-1"))
	startWorker(t, NewRequestWorker(client, client, &countingComputer{code: model.ResponseFailed}, WithResultPaths(paths)))

	_, err := NewResultPublisher(client, client).WaitForResult(ctx, "r1", 2*time.Second)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		_, found, _ := paths.GetPath(ctx, "svc-1")
		return !found
	}, 2*time.Second, 10*time.Millisecond)

	_, found, err := paths.GetPath(ctx, "svc-2")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestWorkerResubmissionResetsConflictCount(t *testing.T) {
	ctx := context.Background()
	client := etcdtest.New()
	computer := &countingComputer{}
	putRequest(t, client, lambdaRequest("r1", "svc-1"))
	w := NewRequestWorker(client, client, computer, WithMaxConflictRetries(1))
	startWorker(t, w)

	publisher := NewResultPublisher(client, client)
	_, err := publisher.WaitForResult(ctx, "r1", 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, publisher.ReportConflict(ctx, Conflict{RequestID: "r1", Reason: "wavelength 1 taken"}))
	assert.Eventually(t, func() bool { return computer.Calls() == 2 }, 2*time.Second, 10*time.Millisecond)
	n, ok := attemptsOf(w, "r1")
	assert.True(t, ok)
	assert.Equal(t, 1, n)

	putRequest(t, client, lambdaRequest("r1", "svc-1"))
	assert.Eventually(t, func() bool {
		_, ok := attemptsOf(w, "r1")
		return computer.Calls() == 3 && !ok
	}, 2*time.Second, 10*time.Millisecond)

	// a fresh conflict sequence is retried instead of given up
	require.NoError(t, publisher.ReportConflict(ctx, Conflict{RequestID: "r1", Reason: "wavelength 1 taken again"}))
	assert.Eventually(t, func() bool { return computer.Calls() == 4 }, 2*time.Second, 10*time.Millisecond)
	result, err := publisher.GetResult(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, result.OK())
}

func TestWorkerDropsCountOfWithdrawnRequest(t *testing.T) {
	ctx := context.Background()
	client := etcdtest.New()
	computer := &countingComputer{}
	putRequest(t, client, lambdaRequest("r1", "svc-1"))
	w := NewRequestWorker(client, client, computer)
	startWorker(t, w)

	publisher := NewResultPublisher(client, client)
	_, err := publisher.WaitForResult(ctx, "r1", 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, publisher.ReportConflict(ctx, Conflict{RequestID: "r1"}))
	assert.Eventually(t, func() bool {
		_, ok := attemptsOf(w, "r1")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	_, err = client.Delete(ctx, RequestPrefix+"r1")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		_, ok := attemptsOf(w, "r1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
