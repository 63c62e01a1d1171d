package model

import (
	"pce/constraints"
)

type ResponseCode string

const (
	ResponseOK     ResponseCode = "OK"
	ResponseFailed ResponseCode = "FAILED"
)

type LocalCause string

const (
	CauseNone           LocalCause = "NONE"
	CauseNoPathExists   LocalCause = "NO_PATH_EXISTS"
	CauseTooHighLatency LocalCause = "TOO_HIGH_LATENCY"
	CauseInternal       LocalCause = "INTERNAL"
)

type ResourceKind string

const (
	ResourceTerminationPoint ResourceKind = "termination-point"
	ResourceNode             ResourceKind = "node"
	ResourceLink             ResourceKind = "link"
)

// Resource is one ordered entry of a path description.
type Resource struct {
	ID        int          `json:"id"`
	Kind      ResourceKind `json:"kind"`
	NodeID    string       `json:"node_id,omitempty"`
	TpID      string       `json:"tp_id,omitempty"`
	LinkID    string       `json:"link_id,omitempty"`
	OperState string       `json:"oper_state,omitempty"`
}

// Direction is the path description of one transmission direction.
type Direction struct {
	Rate       uint32     `json:"rate"`
	Format     string     `json:"format,omitempty"`
	Wavelength int        `json:"wavelength"`
	Frequency  float64    `json:"frequency_thz,omitempty"`
	TribPort   int        `json:"trib_port,omitempty"`
	TribSlot   int        `json:"trib_slot,omitempty"`
	Resources  []Resource `json:"resources"`
}

// Add appends r, numbering it after the existing resources.
func (d *Direction) Add(r Resource) {
	r.ID = len(d.Resources)
	d.Resources = append(d.Resources, r)
}

// NodeIDs lists the node resources in order.
func (d *Direction) NodeIDs() []string {
	if d == nil {
		return nil
	}
	var out []string
	for _, r := range d.Resources {
		if r.Kind == ResourceNode {
			out = append(out, r.NodeID)
		}
	}
	return out
}

// PathResult is the outcome of one pipeline run.
type PathResult struct {
	ResponseCode ResponseCode       `json:"response_code"`
	LocalCause   LocalCause         `json:"local_cause"`
	Message      string             `json:"message,omitempty"`
	Metric       constraints.Metric `json:"metric,omitempty"`
	Wavelength   int                `json:"wavelength"`
	TribPort     int                `json:"trib_port,omitempty"`
	TribSlot     int                `json:"trib_slot,omitempty"`
	Rate         uint32             `json:"rate,omitempty"`
	Distance     uint64             `json:"distance"`
	Latency      uint64             `json:"latency"`
	Path         []string           `json:"path,omitempty"`
	AToZ         *Direction         `json:"a_to_z,omitempty"`
	ZToA         *Direction         `json:"z_to_a,omitempty"`
}

func Failed(cause LocalCause, message string) *PathResult {
	return &PathResult{ResponseCode: ResponseFailed, LocalCause: cause, Message: message}
}

func (r *PathResult) OK() bool {
	return r != nil && r.ResponseCode == ResponseOK
}

// Service is the rate and format of the requested connection.
type Service struct {
	Format string
	Rate   uint32
}

const (
	FormatEthernet = "Ethernet"
	FormatOTU      = "OTU"
	FormatODU      = "ODU"
)

// ODU4 payload has 80 tributary slots.
const TribSlotsPerODU4 = 80

// SubLambda reports whether the service is carried in OTN tributary slots
// instead of a wavelength of its own.
func (s Service) SubLambda() bool {
	return (s.Format == FormatODU || s.Format == FormatEthernet) && s.Rate < 100
}

// TribSlots returns how many 1.25G slots a sub-lambda rate occupies.
func (s Service) TribSlots() (int, bool) {
	switch s.Rate {
	case 1:
		return 1, true
	case 10:
		return 8, true
	case 40:
		return 32, true
	}
	return 0, false
}
