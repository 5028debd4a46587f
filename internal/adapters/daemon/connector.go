package daemon

import (
	"context"
	"fmt"

	"go.trai.ch/dval/internal/adapters/pool"
	"go.trai.ch/dval/internal/core/ports"
)

// Connector creates daemon clients, servers and remote executors that share the
// process logger and metrics.
type Connector struct {
	logger  ports.Logger
	metrics ports.Metrics
}

// NewConnector creates a Connector. A nil metrics recorder disables server metrics.
func NewConnector(logger ports.Logger, metrics ports.Metrics) *Connector {
	return &Connector{logger: logger, metrics: metrics}
}

// DialCache connects to the cache daemon at addr and checks its health.
// An unhealthy daemon is logged, not returned: the caller's cache guard degrades to misses.
func (c *Connector) DialCache(ctx context.Context, addr string, opts ...DialOption) (*Client, error) {
	client, err := Dial(addr, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Check(ctx, CacheServiceName); err != nil {
		c.logger.Warn(fmt.Sprintf("cache daemon at %s is not reachable yet: %v", addr, err))
	}
	return client, nil
}

// RemoteExecutor connects to the workers and checks their evaluator service.
func (c *Connector) RemoteExecutor(
	ctx context.Context,
	addrs []string,
	opts pool.Options,
	dialOpts ...DialOption,
) (*RemoteExecutor, error) {
	exec, err := NewRemoteExecutor(addrs, opts, dialOpts...)
	if err != nil {
		return nil, err
	}
	if err := exec.Check(ctx); err != nil {
		c.logger.Warn(fmt.Sprintf("some workers are not serving evaluations: %v", err))
	}
	return exec, nil
}

// NewServer creates a daemon server for cache that reports to the connector's metrics.
func (c *Connector) NewServer(cache ports.ResultCache, lifecycle *Lifecycle, opts ...ServerOption) *Server {
	if c.metrics != nil {
		opts = append([]ServerOption{WithServerMetrics(c.metrics)}, opts...)
	}
	return NewServer(cache, lifecycle, c.logger, opts...)
}
