package solver

import (
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	log "github.com/sirupsen/logrus"

	"pce/constraints"
	"pce/path_computation/model"
)

// Solver runs the two-phase routing and wavelength assignment over a graph.
// It keeps no per-request state and is safe for concurrent use.
type Solver struct {
	pool *ants.Pool
}

type Option func(*Solver)

// WithPool runs the per-wavelength searches of the full phase on pool.
func WithPool(pool *ants.Pool) Option {
	return func(s *Solver) {
		s.pool = pool
	}
}

func New(opts ...Option) *Solver {
	s := &Solver{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// candidate is the outcome of one restricted search.
type candidate struct {
	wavelength int
	path       *path
}

// Solve computes a path and a wavelength, or trib port and slot for
// sub-lambda services, between the graph's endpoints.
func (s *Solver) Solve(g *model.Graph, cs constraints.ConstraintSet, svc model.Service) *model.PathResult {
	weigh, metric := weigherFor(cs.Metric)

	quick, ok := shortestPath(fullView(g), weigh)
	if !ok {
		log.Infof("Solve: no path between %s and %s", g.AEnd.ID, g.ZEnd.ID)
		return failed(model.CauseNoPathExists, metric, "no path exists between %s and %s", g.AEnd.ID, g.ZEnd.ID)
	}

	latencyFailed := cs.LatencyExceeded(quick.Latency)
	if latencyFailed {
		log.Infof("Solve: shortest path latency %d over budget %d, metric=%s", quick.Latency, *cs.MaxLatency, metric)
	}

	if svc.SubLambda() {
		if latencyFailed {
			return failed(model.CauseTooHighLatency, metric, "path latency %d exceeds %d", quick.Latency, *cs.MaxLatency)
		}
		if !quick.visits(g, cs.IncludeNodes) {
			return failed(model.CauseNoPathExists, metric, "no path through include nodes %v", cs.IncludeNodes)
		}
		return s.assignTribSlots(g, quick, metric, svc)
	}

	if !latencyFailed && quick.visits(g, cs.IncludeNodes) {
		if w := quick.sharedWavelength(g); w != 0 {
			log.Infof("Solve: quick phase found wavelength %d, hops=%d, distance=%d", w, len(quick.Links), quick.Distance)
			return success(quick, metric, w)
		}
	}

	best, wavelength, latencyRejected := s.fullPhase(g, cs, weigh, quick.Distance)
	if best != nil {
		log.Infof("Solve: full phase found wavelength %d, hops=%d, distance=%d", wavelength, len(best.Links), best.Distance)
		return success(best, metric, wavelength)
	}

	if latencyFailed || latencyRejected {
		return failed(model.CauseTooHighLatency, metric, "no wavelength-continuous path within latency %d", *cs.MaxLatency)
	}
	return failed(model.CauseNoPathExists, metric, "no wavelength-continuous path between %s and %s", g.AEnd.ID, g.ZEnd.ID)
}

// fullPhase searches every wavelength's restricted graph and keeps the
// shortest admissible path, the lowest wavelength winning ties. It reports
// whether every path found was over the latency budget.
func (s *Solver) fullPhase(g *model.Graph, cs constraints.ConstraintSet, weigh Weigher, bound uint64) (*path, int, bool) {
	var candidates []candidate
	if s.pool != nil {
		candidates = s.searchParallel(g, weigh)
	}

	var best *path
	wavelength := 0
	found, overLatency := 0, 0
	for w := 1; w <= model.MaxWavelength; w++ {
		var p *path
		if candidates != nil {
			p = candidates[w-1].path
		} else {
			p, _ = shortestPath(restrictedView(g, w), weigh)
		}
		if p == nil {
			continue
		}
		found++
		if cs.LatencyExceeded(p.Latency) {
			overLatency++
			continue
		}
		if !p.visits(g, cs.IncludeNodes) {
			continue
		}
		if best == nil || p.Distance < best.Distance {
			best, wavelength = p, w
		}
		if best.Distance <= bound {
			break
		}
	}
	return best, wavelength, found > 0 && found == overLatency
}

// searchParallel runs the restricted searches on the pool. Results are
// indexed by wavelength so the merge order is the same as a sequential scan.
func (s *Solver) searchParallel(g *model.Graph, weigh Weigher) []candidate {
	candidates := make([]candidate, model.MaxWavelength)
	var wg sync.WaitGroup
	for w := 1; w <= model.MaxWavelength; w++ {
		wavelength := w
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			p, _ := shortestPath(restrictedView(g, wavelength), weigh)
			candidates[wavelength-1] = candidate{wavelength: wavelength, path: p}
		})
		if err != nil {
			log.Warnf("searchParallel: failed to submit wavelength %d: %v, running inline", wavelength, err)
			p, _ := shortestPath(restrictedView(g, wavelength), weigh)
			candidates[wavelength-1] = candidate{wavelength: wavelength, path: p}
			wg.Done()
		}
	}
	wg.Wait()
	return candidates
}

// assignTribSlots picks the trib port from the A end network port and the
// first block of slots free on the network ports at both ends.
func (s *Solver) assignTribSlots(g *model.Graph, p *path, metric constraints.Metric, svc model.Service) *model.PathResult {
	slots, ok := svc.TribSlots()
	if !ok {
		return failed(model.CauseNone, metric, "unsupported sub-lambda rate %dG", svc.Rate)
	}

	var aTp, zTp string
	if first, ok := g.Links.Get(p.Links[0]); ok {
		aTp = first.SourceTP
	}
	if last, ok := g.Links.Get(p.Links[len(p.Links)-1]); ok {
		zTp = last.DestTP
	}
	aRole, _ := g.AEnd.Role.(*model.XponderRole)
	zRole, _ := g.ZEnd.Role.(*model.XponderRole)

	port := 1
	if aRole != nil {
		if ordinal := aRole.PortOrdinal(aTp); ordinal > 0 {
			port = ordinal
		}
	}

	slot := firstFreeTribBlock(slots, aRole, aTp, zRole, zTp)
	if slot == 0 {
		log.Infof("assignTribSlots: no %d free trib slots on %s %s and %s %s", slots, g.AEnd.ID, aTp, g.ZEnd.ID, zTp)
		return failed(model.CauseNoPathExists, metric, "no block of %d free trib slots on %s/%s and %s/%s",
			slots, g.AEnd.ID, aTp, g.ZEnd.ID, zTp)
	}

	res := success(p, metric, 0)
	res.TribPort = port
	res.TribSlot = slot
	log.Infof("assignTribSlots: rate=%dG, trib port=%d, slots %d..%d of %d", svc.Rate, port, slot, slot+slots-1, model.TribSlotsPerODU4)
	return res
}

// firstFreeTribBlock returns the first slot of the lowest block of n slots
// free at both ends, or 0. A missing role places no restriction.
func firstFreeTribBlock(n int, aRole *model.XponderRole, aTp string, zRole *model.XponderRole, zTp string) int {
	for first := 1; first+n-1 <= model.TribSlotsPerODU4; first++ {
		if aRole != nil && !aRole.TribSlotsFree(aTp, first, n) {
			continue
		}
		if zRole != nil && !zRole.TribSlotsFree(zTp, first, n) {
			continue
		}
		return first
	}
	return 0
}

func success(p *path, metric constraints.Metric, wavelength int) *model.PathResult {
	return &model.PathResult{
		ResponseCode: model.ResponseOK,
		LocalCause:   model.CauseNone,
		Message:      "path computed",
		Metric:       metric,
		Wavelength:   wavelength,
		Distance:     p.Distance,
		Latency:      p.Latency,
		Path:         append([]string(nil), p.Links...),
	}
}

func failed(cause model.LocalCause, metric constraints.Metric, format string, args ...interface{}) *model.PathResult {
	res := model.Failed(cause, fmt.Sprintf(format, args...))
	res.Metric = metric
	return res
}
