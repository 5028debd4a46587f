package app

import "go.trai.ch/dval/internal/core/ports"

// Components holds the wired application and the adapters the CLI configures directly.
type Components struct {
	App    *App
	Logger ports.Logger
}
