package feasibility

import (
	"context"
	"encoding/json"

	"pce/constraints"
	"pce/path_computation/model"
)

const (
	ServiceName = "pce.feasibility.v1.Feasibility"
	checkMethod = "/" + ServiceName + "/Check"
)

// Request carries both path descriptions of a computed service to the
// physical layer check.
type Request struct {
	RequestID       string                   `json:"request_id,omitempty"`
	ServiceName     string                   `json:"service_name,omitempty"`
	AToZ            *model.Direction         `json:"a_to_z"`
	ZToA            *model.Direction         `json:"z_to_a"`
	HardConstraints *constraints.Constraints `json:"hard_constraints,omitempty"`
}

// Response tells whether the path is usable. An infeasible answer may offer a
// substitute hard constraint set to compute the service again with.
type Response struct {
	Feasible   bool                     `json:"feasible"`
	Substitute *constraints.Constraints `json:"substitute,omitempty"`
	Message    string                   `json:"message,omitempty"`
}

// Checker is anything that can judge a path's physical feasibility.
type Checker interface {
	Check(ctx context.Context, req *Request) (*Response, error)
}

// CheckerFunc adapts a function to Checker and to the server side handler.
type CheckerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f CheckerFunc) Check(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// codec carries messages as JSON instead of protobuf.
type codec struct{}

func (codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (codec) Name() string {
	return "json"
}
