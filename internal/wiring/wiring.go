// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/dval/internal/adapters/config"
	_ "go.trai.ch/dval/internal/adapters/daemon"
	_ "go.trai.ch/dval/internal/adapters/fingerprint"
	_ "go.trai.ch/dval/internal/adapters/logger"
	_ "go.trai.ch/dval/internal/adapters/model"
	_ "go.trai.ch/dval/internal/adapters/telemetry"
	// Register app nodes.
	_ "go.trai.ch/dval/internal/app"
)
