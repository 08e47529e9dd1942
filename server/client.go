package server

import (
	"context"

	"github.com/chazu/mop/profile"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls the inspection service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial opens an insecure connection to addr that speaks the service's
// codec by default.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	return grpc.NewClient(addr, opts...)
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.cc.Invoke(ctx, fullMethod(method), req, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

// Snapshot fetches the remote dispatch profile.
func (c *Client) Snapshot(ctx context.Context) (*profile.Snapshot, error) {
	return invoke[profile.Snapshot](ctx, c, "Snapshot", &SnapshotRequest{})
}

// Describe fetches the shape of the metaclass of the named type.
func (c *Client) Describe(ctx context.Context, typeName string) (*Description, error) {
	return invoke[Description](ctx, c, "Describe", &DescribeRequest{Type: typeName})
}

// Epoch fetches the remote registry epoch.
func (c *Client) Epoch(ctx context.Context) (*EpochResponse, error) {
	return invoke[EpochResponse](ctx, c, "Epoch", &EpochRequest{})
}
