package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/dval/internal/adapters/config"      //nolint:depguard // Wired in app layer
	"go.trai.ch/dval/internal/adapters/daemon"      //nolint:depguard // Wired in app layer
	"go.trai.ch/dval/internal/adapters/fingerprint" //nolint:depguard // Wired in app layer
	"go.trai.ch/dval/internal/adapters/logger"      //nolint:depguard // Wired in app layer
	"go.trai.ch/dval/internal/adapters/model"       //nolint:depguard // Wired in app layer
	"go.trai.ch/dval/internal/adapters/telemetry"   //nolint:depguard // Wired in app layer
	"go.trai.ch/dval/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			model.NodeID,
			daemon.NodeID,
			fingerprint.NodeID,
			logger.NodeID,
			telemetry.TracerNodeID,
			telemetry.MetricsNodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: runComponentsNode,
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	registry, err := graft.Dep[*model.Registry](ctx)
	if err != nil {
		return nil, err
	}

	connector, err := graft.Dep[*daemon.Connector](ctx)
	if err != nil {
		return nil, err
	}

	fp, err := graft.Dep[ports.Fingerprinter](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	tracer, err := graft.Dep[ports.Tracer](ctx)
	if err != nil {
		return nil, err
	}

	metrics, err := graft.Dep[ports.Metrics](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, registry, connector, fp, log, tracer, metrics), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	app, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{App: app, Logger: log}, nil
}
