//go:build windows

package main

import (
	"fmt"
	"log/slog"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/backend/webgpu"

	"github.com/born-ml/bnn/internal/config"
)

// openSession builds the experiment on the selected device. The returned release
// function frees device resources.
func openSession(command string, cfg config.Config, logger *slog.Logger) (session, func(), error) {
	switch device {
	case "cpu":
		e, err := newExperiment(command, cfg, autodiff.New(cpu.New()), logger)
		if err != nil {
			return nil, nil, err
		}
		return e, func() {}, nil
	case "gpu":
		if !webgpu.IsAvailable() {
			return nil, nil, fmt.Errorf("webgpu is not available, ensure wgpu-native is installed")
		}
		gpu, err := webgpu.New()
		if err != nil {
			return nil, nil, fmt.Errorf("create webgpu backend: %w", err)
		}
		logger.Info("using gpu backend", "name", gpu.Name())
		e, err := newExperiment(command, cfg, autodiff.New(gpu), logger)
		if err != nil {
			gpu.Release()
			return nil, nil, err
		}
		return e, gpu.Release, nil
	default:
		return nil, nil, fmt.Errorf("unknown device %q", device)
	}
}
