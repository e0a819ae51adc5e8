//go:build windows

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/born-ml/born/backend/webgpu"

	"github.com/born-ml/born-mnist/internal/config"
	"github.com/born-ml/born-mnist/internal/train"
)

// run dispatches to WebGPU when requested or, for "auto", when an adapter
// is present. A failed "auto" initialisation falls back to the CPU.
func run(ctx context.Context, cfg config.Config, out io.Writer) (*train.Result, error) {
	switch cfg.Device {
	case config.DeviceCPU:
		return runCPU(ctx, cfg, out)
	case config.DeviceGPU:
		if !webgpu.IsAvailable() {
			return nil, errors.New("device gpu: WebGPU adapter not available")
		}
	default:
		if !webgpu.IsAvailable() {
			log.Printf("device: webgpu unavailable, using cpu")
			return runCPU(ctx, cfg, out)
		}
	}

	gpu, err := webgpu.New()
	if err != nil {
		if cfg.Device == config.DeviceGPU {
			return nil, fmt.Errorf("device gpu: %w", err)
		}
		log.Printf("device: webgpu init failed, using cpu: %v", err)
		return runCPU(ctx, cfg, out)
	}
	defer gpu.Release()

	return train.Run(ctx, cfg, gpu, out)
}
