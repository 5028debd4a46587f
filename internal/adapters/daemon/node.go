package daemon

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/dval/internal/adapters/logger"
	"go.trai.ch/dval/internal/adapters/telemetry"
	"go.trai.ch/dval/internal/core/ports"
)

// NodeID is the unique identifier for the daemon connector Graft node.
const NodeID graft.ID = "adapter.daemon"

func init() {
	graft.Register(graft.Node[*Connector]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID, telemetry.MetricsNodeID},
		Run: func(ctx context.Context) (*Connector, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			metrics, err := graft.Dep[ports.Metrics](ctx)
			if err != nil {
				return nil, err
			}
			return NewConnector(log, metrics), nil
		},
	})
}
