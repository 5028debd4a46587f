// Package daemon implements the networked side of dval: a gRPC daemon serving the shared
// result cache and remote evaluations, its client, and the remote executor.
package daemon

import (
	"context"
	"net"
	"time"

	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports"
	"go.trai.ch/zerr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var _ ports.ResultCache = (*Client)(nil)

// DialOption configures a Client.
type DialOption func(*dialOptions)

type dialOptions struct {
	dialer func(ctx context.Context, addr string) (net.Conn, error)
}

// WithDialer replaces the network dialer, e.g. with an in-memory listener.
func WithDialer(dialer func(ctx context.Context, addr string) (net.Conn, error)) DialOption {
	return func(o *dialOptions) {
		o.dialer = dialer
	}
}

// DaemonStats describes a running daemon.
type DaemonStats struct {
	// Entries is the number of cached scores, or -1 if the backend cannot count them.
	Entries       int
	Uptime        time.Duration
	IdleRemaining time.Duration
}

// Client talks to a daemon. It implements ports.ResultCache.
type Client struct {
	addr string
	conn *grpc.ClientConn
}

// Dial creates a client for the daemon at addr.
// grpc.NewClient connects lazily; the first RPC or Check establishes the connection.
func Dial(addr string, opts ...DialOption) (*Client, error) {
	var o dialOptions
	for _, opt := range opts {
		opt(&o)
	}

	grpcOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if o.dialer != nil {
		grpcOpts = append(grpcOpts, grpc.WithContextDialer(o.dialer))
	}

	conn, err := grpc.NewClient(addr, grpcOpts...)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "daemon client creation failed"), "address", addr)
	}
	return &Client{addr: addr, conn: conn}, nil
}

// Addr returns the daemon address.
func (c *Client) Addr() string {
	return c.addr
}

// Get implements ports.ResultCache.
func (c *Client) Get(ctx context.Context, fp domain.Fingerprint) (*domain.CacheEntry, error) {
	out := new(structpb.Struct)
	err := c.conn.Invoke(ctx, methodGet, wrapperspb.String(fp.String()), out)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, c.wrap(err, "cache get failed")
	}

	entry, err := decodeEntry(out)
	if err != nil {
		return nil, err
	}
	if entry.Expired(time.Now()) {
		return nil, nil
	}
	return &entry, nil
}

// Put implements ports.ResultCache.
func (c *Client) Put(ctx context.Context, entry domain.CacheEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	in, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	if err := c.conn.Invoke(ctx, methodPut, in, new(emptypb.Empty)); err != nil {
		return c.wrap(err, "cache put failed")
	}
	return nil
}

// Clear implements ports.ResultCache.
func (c *Client) Clear(ctx context.Context) error {
	if err := c.conn.Invoke(ctx, methodClear, &emptypb.Empty{}, new(emptypb.Empty)); err != nil {
		return c.wrap(err, "cache clear failed")
	}
	return nil
}

// Stats returns the daemon's counters.
func (c *Client) Stats(ctx context.Context) (*DaemonStats, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, methodStats, &emptypb.Empty{}, out); err != nil {
		return nil, c.wrap(err, "daemon stats failed")
	}

	fields := out.GetFields()
	uptime, _ := time.ParseDuration(fields[fieldUptime].GetStringValue())
	idle, _ := time.ParseDuration(fields[fieldIdle].GetStringValue())
	return &DaemonStats{
		Entries:       int(fields[fieldEntries].GetNumberValue()),
		Uptime:        uptime,
		IdleRemaining: idle,
	}, nil
}

// Check asks the daemon for the health of service, or of the whole daemon if service is empty.
func (c *Client) Check(ctx context.Context, service string) error {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return c.wrap(err, "health check failed")
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return zerr.With(zerr.With(zerr.Wrap(domain.ErrCacheUnavailable, "daemon not serving"),
			"address", c.addr), "status", resp.GetStatus().String())
	}
	return nil
}

// Evaluate asks the daemon to evaluate call. A worker serving another utility
// fails with ErrUtilityMismatch, an index outside its dataset with ErrInvalidSubset.
func (c *Client) Evaluate(ctx context.Context, call domain.UtilityCall) (float64, error) {
	in, err := encodeCall(call)
	if err != nil {
		return 0, err
	}

	out := new(wrapperspb.DoubleValue)
	err = c.conn.Invoke(ctx, methodEvaluate, in, out)
	switch status.Code(err) {
	case codes.OK:
		return out.GetValue(), nil
	case codes.FailedPrecondition:
		return 0, zerr.With(zerr.With(zerr.Wrap(domain.ErrUtilityMismatch, status.Convert(err).Message()),
			"worker", c.addr), "utility", call.UtilityID)
	case codes.InvalidArgument:
		return 0, zerr.With(zerr.Wrap(domain.ErrInvalidSubset, status.Convert(err).Message()), "worker", c.addr)
	default:
		return 0, c.wrap(err, "remote evaluation failed")
	}
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) wrap(err error, msg string) error {
	if ctxErr := contextError(err); ctxErr != nil {
		return zerr.With(zerr.Wrap(ctxErr, msg), "address", c.addr)
	}
	return zerr.With(zerr.Wrap(err, msg), "address", c.addr)
}

// contextError maps gRPC context statuses back to the context errors.
func contextError(err error) error {
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	default:
		return nil
	}
}
