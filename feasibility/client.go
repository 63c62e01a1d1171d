package feasibility

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type Client struct {
	conn    *grpc.ClientConn
	timeout time.Duration
}

// NewClient prepares a connection to the feasibility service. The connection
// is established lazily on the first call.
func NewClient(address string, timeout time.Duration, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(codec{})),
	}, opts...)

	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create feasibility client for %s: %v", address, err)
	}
	return &Client{conn: conn, timeout: timeout}, nil
}

func (c *Client) Check(ctx context.Context, req *Request) (*Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp := &Response{}
	if err := c.conn.Invoke(ctx, checkMethod, req, resp); err != nil {
		return nil, fmt.Errorf("feasibility check failed: %w", err)
	}
	log.Infof("Check: request=%s, feasible=%v, substitute=%v, message=%s",
		req.RequestID, resp.Feasible, resp.Substitute != nil, resp.Message)
	return resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
