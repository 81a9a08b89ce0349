//go:build !windows

package main

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"

	"github.com/born-ml/bnn/internal/config"
)

// openSession builds the experiment on the selected device. The returned release
// function frees device resources.
func openSession(command string, cfg config.Config, logger *slog.Logger) (session, func(), error) {
	if device != "cpu" {
		return nil, nil, fmt.Errorf("device %q is not available on this platform", device)
	}
	e, err := newExperiment(command, cfg, autodiff.New(cpu.New()), logger)
	if err != nil {
		return nil, nil, err
	}
	return e, func() {}, nil
}
