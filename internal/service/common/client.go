//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultCallTimeout bounds a single health RPC.
const DefaultCallTimeout = 5 * time.Second

// Client wraps the gRPC health client of a release mirror.
type Client struct {
	// conn is the underlying gRPC connection to the mirror.
	conn *grpc.ClientConn
	// api is the generated health client.
	api healthpb.HealthClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// ErrNotServing is returned when the mirror reports anything but SERVING.
	ErrNotServing = errors.New("mirror is not serving")
)

// Dial prepares a connection to the mirror's gRPC endpoint.
// The transport is plaintext; mirrors are expected on a trusted network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial mirror: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         healthpb.NewHealthClient(conn),
		callTimeout: DefaultCallTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// CheckHealth asks the mirror about service ("" is the mirror as a whole)
// and returns ErrNotServing unless the answer is SERVING.
func (c *Client) CheckHealth(ctx context.Context, service string) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return fmt.Errorf("health check %q: %w", service, err)
	}

	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%q is %s: %w", service, resp.GetStatus(), ErrNotServing)
	}

	return nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
