package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"

	"pce/constraints"
	"pce/feasibility"
	"pce/metrics"
	"pce/path_computation/assembler"
	"pce/path_computation/builder"
	"pce/path_computation/model"
	"pce/path_computation/solver"
	"pce/topology"
)

// PathReader looks up the node list stored for an existing service.
type PathReader interface {
	GetPath(ctx context.Context, serviceName string) ([]string, bool, error)
}

// Orchestrator runs builder, solver and assembler for each request. It keeps
// no per-request state; every request works on its own topology copy.
type Orchestrator struct {
	topology    topology.Store
	solver      *solver.Solver
	paths       PathReader
	feasibility feasibility.Checker
	metrics     *metrics.Registry
	pool        *ants.Pool
}

type Option func(*Orchestrator)

func WithSolver(s *solver.Solver) Option {
	return func(o *Orchestrator) { o.solver = s }
}

// WithPathStore enables diversity constraints.
func WithPathStore(paths PathReader) Option {
	return func(o *Orchestrator) { o.paths = paths }
}

// WithFeasibility checks every computed path with the physical layer.
func WithFeasibility(c feasibility.Checker) Option {
	return func(o *Orchestrator) { o.feasibility = c }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithPool runs ComputeAll requests on pool.
func WithPool(pool *ants.Pool) Option {
	return func(o *Orchestrator) { o.pool = pool }
}

func NewOrchestrator(store topology.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{topology: store}
	for _, opt := range opts {
		opt(o)
	}
	if o.solver == nil {
		o.solver = solver.New()
	}
	return o
}

// Compute answers one request. It never returns nil and never panics; every
// failure is a FAILED result with a cause and message.
func (o *Orchestrator) Compute(ctx context.Context, req *PathComputationRequest) (resp *Response) {
	start := time.Now()
	resp = &Response{}
	if req != nil {
		resp.RequestID, resp.ServiceName = req.RequestID, req.ServiceName
	}
	if resp.RequestID == "" {
		resp.RequestID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Compute: request=%s panicked: %v", resp.RequestID, r)
			resp.PathResult = model.Failed(model.CauseInternal, fmt.Sprintf("internal error: %v", r))
		}
		o.metrics.RecordComputation(string(resp.ResponseCode), string(resp.LocalCause), time.Since(start))
		log.Infof("Compute: request=%s, service=%s, code=%s, cause=%s, wavelength=%d, took=%v",
			resp.RequestID, resp.ServiceName, resp.ResponseCode, resp.LocalCause, resp.Wavelength, time.Since(start))
	}()

	resp.PathResult = o.compute(ctx, resp.RequestID, req)
	return resp
}

func (o *Orchestrator) compute(ctx context.Context, requestID string, req *PathComputationRequest) *model.PathResult {
	if err := req.Validate(); err != nil {
		return model.Failed(model.CauseNone, err.Error())
	}

	network, err := o.topology.Read(ctx)
	if err != nil {
		if errors.Is(err, topology.ErrEmptyTopology) || errors.Is(err, topology.ErrNotLoaded) {
			return model.Failed(model.CauseNone, fmt.Sprintf("topology unavailable: %v", err))
		}
		return model.Failed(model.CauseInternal, fmt.Sprintf("failed to read topology: %v", err))
	}

	hard := constraints.FromConstraints(req.HardConstraints)
	hard = o.applyDiversity(ctx, network, req, hard)

	res := o.run(network, hard, req)
	if !res.OK() {
		return res
	}
	return o.verify(ctx, network, requestID, req, hard, res)
}

// run computes with hard and soft constraints merged, and with hard ones
// alone when the merged set leaves no path or none within its latency budget.
func (o *Orchestrator) run(network *topology.Network, hard constraints.ConstraintSet, req *PathComputationRequest) *model.PathResult {
	if req.SoftConstraints != nil {
		res := o.pipeline(network, hard.Merge(req.SoftConstraints), req)
		if res.LocalCause != model.CauseNoPathExists && res.LocalCause != model.CauseTooHighLatency {
			return res
		}
		log.Infof("run: service=%s, %s with soft constraints, retrying with hard constraints only", req.ServiceName, res.LocalCause)
		o.metrics.RecordSoftRelax()
	}
	return o.pipeline(network, hard, req)
}

// pipeline is one builder, solver, assembler pass.
func (o *Orchestrator) pipeline(network *topology.Network, cs constraints.ConstraintSet, req *PathComputationRequest) *model.PathResult {
	svc := req.Service()

	g, err := builder.Build(network, cs, req.ServiceAEnd.NodeID, req.ServiceZEnd.NodeID)
	if err != nil {
		switch {
		case errors.Is(err, builder.ErrEndpointNotFound):
			return model.Failed(model.CauseNoPathExists, err.Error())
		case errors.Is(err, topology.ErrEmptyTopology):
			return model.Failed(model.CauseNone, err.Error())
		}
		return model.Failed(model.CauseInternal, err.Error())
	}

	res := o.solver.Solve(g, cs, svc)
	if res.LocalCause == model.CauseTooHighLatency && res.Metric == constraints.MetricHopCount && cs.HasLatencyBudget() {
		log.Infof("pipeline: service=%s, HopCount path over latency budget %d, retrying with %s",
			req.ServiceName, *cs.MaxLatency, constraints.MetricPropagationDelay)
		res = o.solver.Solve(g, cs.WithMetric(constraints.MetricPropagationDelay), svc)
		o.metrics.RecordMetricRetry(res.OK())
	}
	if !res.OK() {
		return res
	}

	if err := assembler.Assemble(g, res, svc); err != nil {
		return model.Failed(model.CauseInternal, fmt.Sprintf("failed to assemble path description: %v", err))
	}
	return res
}

// applyDiversity excludes the nodes of the services the request must be
// diverse from. The request's own end points stay usable.
func (o *Orchestrator) applyDiversity(ctx context.Context, network *topology.Network, req *PathComputationRequest, cs constraints.ConstraintSet) constraints.ConstraintSet {
	if req.HardConstraints == nil || req.HardConstraints.Diversity == nil {
		return cs
	}
	if o.paths == nil {
		log.Warnf("applyDiversity: service=%s asks for diversity but no path store is configured", req.ServiceName)
		return cs
	}

	supporting := make(map[string]string, len(network.Nodes))
	for _, n := range network.Nodes {
		supporting[n.ID] = n.SupportingNodeID
	}
	isEnd := func(id string) bool {
		for _, end := range []string{req.ServiceAEnd.NodeID, req.ServiceZEnd.NodeID} {
			if id == end || supporting[id] == end {
				return true
			}
		}
		return false
	}

	var excluded []string
	for _, service := range req.HardConstraints.Diversity.ExistingServices {
		nodes, found, err := o.paths.GetPath(ctx, service)
		if err != nil {
			log.Warnf("applyDiversity: failed to read path of %s: %v, skipping", service, err)
			continue
		}
		if !found {
			log.Infof("applyDiversity: no stored path for %s, skipping", service)
			continue
		}
		for _, id := range nodes {
			if !isEnd(id) {
				excluded = append(excluded, id)
			}
		}
	}
	if len(excluded) == 0 {
		return cs
	}
	log.Infof("applyDiversity: service=%s excludes %d nodes of %v", req.ServiceName, len(excluded), req.HardConstraints.Diversity.ExistingServices)
	return cs.WithExcludedNodes(excluded...)
}

// verify asks the feasibility service about res. An unreachable service
// leaves res as computed. An infeasible answer with a substitute constraint
// set reruns the pipeline once, and the new path must be approved.
func (o *Orchestrator) verify(ctx context.Context, network *topology.Network, requestID string, req *PathComputationRequest,
	hard constraints.ConstraintSet, res *model.PathResult) *model.PathResult {
	if o.feasibility == nil {
		return res
	}

	reply, err := o.check(ctx, requestID, req, hard.ToConstraints(), res)
	if err != nil {
		log.Warnf("verify: request=%s, %v, returning path unverified", requestID, err)
		return res
	}
	if reply.Feasible {
		return res
	}
	if reply.Substitute == nil {
		return model.Failed(model.CauseNone, fmt.Sprintf("path rejected by feasibility check: %s", reply.Message))
	}

	log.Infof("verify: request=%s, path infeasible (%s), recomputing with substitute constraints", requestID, reply.Message)
	substitute := constraints.FromConstraints(reply.Substitute)
	second := o.pipeline(network, substitute, req)
	if !second.OK() {
		return second
	}

	reply, err = o.check(ctx, requestID, req, reply.Substitute, second)
	if err != nil {
		return model.Failed(model.CauseNone, fmt.Sprintf("substitute path could not be verified: %v", err))
	}
	if !reply.Feasible {
		return model.Failed(model.CauseNone, fmt.Sprintf("substitute path rejected by feasibility check: %s", reply.Message))
	}
	return second
}

func (o *Orchestrator) check(ctx context.Context, requestID string, req *PathComputationRequest,
	hard *constraints.Constraints, res *model.PathResult) (*feasibility.Response, error) {
	reply, err := o.feasibility.Check(ctx, &feasibility.Request{
		RequestID:       requestID,
		ServiceName:     req.ServiceName,
		AToZ:            res.AToZ,
		ZToA:            res.ZToA,
		HardConstraints: hard,
	})
	switch {
	case err != nil:
		o.metrics.RecordFeasibility("unreachable")
		return nil, err
	case reply == nil:
		o.metrics.RecordFeasibility("unreachable")
		return nil, errors.New("empty feasibility response")
	case reply.Feasible:
		o.metrics.RecordFeasibility("feasible")
	default:
		o.metrics.RecordFeasibility("infeasible")
	}
	return reply, nil
}

// Nodes lists the nodes of the A to Z path once each, in order.
func (r *Response) Nodes() []string {
	if r == nil || r.PathResult == nil {
		return nil
	}
	var out []string
	for _, id := range r.AToZ.NodeIDs() {
		if len(out) == 0 || out[len(out)-1] != id {
			out = append(out, id)
		}
	}
	return out
}
