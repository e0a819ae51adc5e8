//go:build !windows

package main

import (
	"context"
	"errors"
	"io"

	"github.com/born-ml/born-mnist/internal/config"
	"github.com/born-ml/born-mnist/internal/train"
)

// errNoGPU is returned for an explicit gpu request; the WebGPU backend is
// only built for windows.
var errNoGPU = errors.New("device gpu: WebGPU backend is not available on this platform")

func run(ctx context.Context, cfg config.Config, out io.Writer) (*train.Result, error) {
	if cfg.Device == config.DeviceGPU {
		return nil, errNoGPU
	}
	return runCPU(ctx, cfg, out)
}
