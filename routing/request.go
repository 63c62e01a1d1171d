package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"pce/constraints"
	"pce/path_computation/model"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

var ErrInvalidRequest = errors.New("invalid path computation request")

// Endpoint is one end of the requested service.
type Endpoint struct {
	NodeID        string `json:"node_id" yaml:"node_id" validate:"required"`
	ServiceFormat string `json:"service_format" yaml:"service_format" validate:"required,oneof=Ethernet OTU ODU"`
	ServiceRate   uint32 `json:"service_rate" yaml:"service_rate" validate:"required,min=1"`
}

type PathComputationRequest struct {
	RequestID       string                   `json:"request_id,omitempty" yaml:"request_id,omitempty"`
	ServiceName     string                   `json:"service_name" yaml:"service_name" validate:"required"`
	ServiceAEnd     Endpoint                 `json:"service_a_end" yaml:"service_a_end"`
	ServiceZEnd     Endpoint                 `json:"service_z_end" yaml:"service_z_end"`
	HardConstraints *constraints.Constraints `json:"hard_constraints,omitempty" yaml:"hard_constraints,omitempty"`
	SoftConstraints *constraints.Constraints `json:"soft_constraints,omitempty" yaml:"soft_constraints,omitempty"`
}

// Validate checks the request before any topology is read.
func (r *PathComputationRequest) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: request cannot be nil", ErrInvalidRequest)
	}
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, formatValidationError(err))
	}
	if r.ServiceAEnd.NodeID == r.ServiceZEnd.NodeID {
		return fmt.Errorf("%w: A and Z end are both %s", ErrInvalidRequest, r.ServiceAEnd.NodeID)
	}
	if r.ServiceAEnd.ServiceRate != r.ServiceZEnd.ServiceRate || r.ServiceAEnd.ServiceFormat != r.ServiceZEnd.ServiceFormat {
		return fmt.Errorf("%w: A end %s %dG does not match Z end %s %dG", ErrInvalidRequest,
			r.ServiceAEnd.ServiceFormat, r.ServiceAEnd.ServiceRate, r.ServiceZEnd.ServiceFormat, r.ServiceZEnd.ServiceRate)
	}
	return nil
}

// Service is the rate and format requested at the A end.
func (r *PathComputationRequest) Service() model.Service {
	return model.Service{Format: r.ServiceAEnd.ServiceFormat, Rate: r.ServiceAEnd.ServiceRate}
}

// Response is a request's result as handed to provisioning.
type Response struct {
	RequestID   string `json:"request_id"`
	ServiceName string `json:"service_name"`
	*model.PathResult
}

func formatValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", e.Namespace()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %v", e.Namespace(), e.Param(), e.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", e.Namespace(), e.Tag(), e.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}
