package constraints

import (
	"sort"
)

// Metric selects the edge weight used by the path solver.
type Metric string

const (
	MetricHopCount         Metric = "HopCount"
	MetricPropagationDelay Metric = "PropagationDelay"
	// IGP and TE metrics are accepted on requests but have no weigher of
	// their own; the solver computes them as HopCount.
	MetricIGP Metric = "IGPMetric"
	MetricTE  Metric = "TEMetric"
)

// Diversity asks for a path node-disjoint from already computed services.
type Diversity struct {
	ExistingServices []string `json:"existing_services,omitempty" yaml:"existing_services,omitempty" validate:"omitempty,dive,required"`
}

// Constraints is the wire form of a hard or soft constraint block.
type Constraints struct {
	ExcludeNodes []string   `json:"exclude_nodes,omitempty" yaml:"exclude_nodes,omitempty" validate:"omitempty,dive,required"`
	ExcludeSRLG  []uint32   `json:"exclude_srlg,omitempty" yaml:"exclude_srlg,omitempty"`
	IncludeNodes []string   `json:"include_nodes,omitempty" yaml:"include_nodes,omitempty" validate:"omitempty,dive,required"`
	MaxLatency   *uint32    `json:"max_latency,omitempty" yaml:"max_latency,omitempty"`
	Metric       Metric     `json:"metric,omitempty" yaml:"metric,omitempty" validate:"omitempty,oneof=HopCount PropagationDelay IGPMetric TEMetric"`
	Diversity    *Diversity `json:"diversity,omitempty" yaml:"diversity,omitempty"`
}

// ConstraintSet is the normalized constraint set one pipeline run works with.
// Lists are sorted and free of duplicates. A nil MaxLatency means unbounded.
type ConstraintSet struct {
	ExcludeNodes []string
	ExcludeSRLG  []uint32
	IncludeNodes []string
	MaxLatency   *uint32
	Metric       Metric
	// metricSet is true when Metric came from the request rather than the
	// HopCount default.
	metricSet bool
}

// FromConstraints normalizes a request constraint block. Diversity is not
// resolved here; see WithExcludedNodes.
func FromConstraints(c *Constraints) ConstraintSet {
	cs := ConstraintSet{Metric: MetricHopCount}
	if c == nil {
		return cs
	}
	cs.ExcludeNodes = unionStrings(nil, c.ExcludeNodes)
	cs.IncludeNodes = unionStrings(nil, c.IncludeNodes)
	cs.ExcludeSRLG = unionUint32(nil, c.ExcludeSRLG)
	if c.MaxLatency != nil {
		v := *c.MaxLatency
		cs.MaxLatency = &v
	}
	if c.Metric != "" {
		cs.Metric = c.Metric
		cs.metricSet = true
	}
	return cs
}

// Merge layers soft constraints on top of cs. Lists are unioned, the tighter
// latency budget wins and a metric set on the hard side is kept.
func (cs ConstraintSet) Merge(soft *Constraints) ConstraintSet {
	if soft == nil {
		return cs.clone()
	}
	out := cs.clone()
	out.ExcludeNodes = unionStrings(out.ExcludeNodes, soft.ExcludeNodes)
	out.IncludeNodes = unionStrings(out.IncludeNodes, soft.IncludeNodes)
	out.ExcludeSRLG = unionUint32(out.ExcludeSRLG, soft.ExcludeSRLG)
	if soft.MaxLatency != nil && (out.MaxLatency == nil || *soft.MaxLatency < *out.MaxLatency) {
		v := *soft.MaxLatency
		out.MaxLatency = &v
	}
	if !out.metricSet && soft.Metric != "" {
		out.Metric = soft.Metric
		out.metricSet = true
	}
	return out
}

// ToConstraints returns the wire form of cs.
func (cs ConstraintSet) ToConstraints() *Constraints {
	out := cs.clone()
	return &Constraints{
		ExcludeNodes: out.ExcludeNodes,
		ExcludeSRLG:  out.ExcludeSRLG,
		IncludeNodes: out.IncludeNodes,
		MaxLatency:   out.MaxLatency,
		Metric:       out.Metric,
	}
}

func (cs ConstraintSet) WithMetric(m Metric) ConstraintSet {
	out := cs.clone()
	out.Metric = m
	out.metricSet = true
	return out
}

func (cs ConstraintSet) WithExcludedNodes(ids ...string) ConstraintSet {
	out := cs.clone()
	out.ExcludeNodes = unionStrings(out.ExcludeNodes, ids)
	return out
}

// IsExcluded reports whether any of ids is on the exclude list.
func (cs ConstraintSet) IsExcluded(ids ...string) bool {
	for _, id := range ids {
		if id == "" {
			continue
		}
		i := sort.SearchStrings(cs.ExcludeNodes, id)
		if i < len(cs.ExcludeNodes) && cs.ExcludeNodes[i] == id {
			return true
		}
	}
	return false
}

func (cs ConstraintSet) HasExcludedSRLG(srlgs []uint32) bool {
	for _, s := range srlgs {
		i := sort.Search(len(cs.ExcludeSRLG), func(i int) bool { return cs.ExcludeSRLG[i] >= s })
		if i < len(cs.ExcludeSRLG) && cs.ExcludeSRLG[i] == s {
			return true
		}
	}
	return false
}

func (cs ConstraintSet) HasLatencyBudget() bool {
	return cs.MaxLatency != nil
}

// LatencyExceeded reports whether latency is over the budget.
func (cs ConstraintSet) LatencyExceeded(latency uint64) bool {
	return cs.MaxLatency != nil && latency > uint64(*cs.MaxLatency)
}

func (cs ConstraintSet) clone() ConstraintSet {
	out := ConstraintSet{
		ExcludeNodes: append([]string(nil), cs.ExcludeNodes...),
		ExcludeSRLG:  append([]uint32(nil), cs.ExcludeSRLG...),
		IncludeNodes: append([]string(nil), cs.IncludeNodes...),
		Metric:       cs.Metric,
		metricSet:    cs.metricSet,
	}
	if cs.MaxLatency != nil {
		v := *cs.MaxLatency
		out.MaxLatency = &v
	}
	if out.Metric == "" {
		out.Metric = MetricHopCount
	}
	return out
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func unionUint32(a, b []uint32) []uint32 {
	seen := make(map[uint32]bool, len(a)+len(b))
	var out []uint32
	for _, list := range [][]uint32{a, b} {
		for _, v := range list {
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
