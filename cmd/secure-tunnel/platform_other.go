//go:build !linux && !darwin && !windows

package main

import (
	"fmt"
	"runtime"

	"secure-tunnel/internal/core"
	"secure-tunnel/internal/platform"
)

func newPlatform(platform.Options) (*platform.Platform, error) {
	return nil, fmt.Errorf("[Core] %s: %w", runtime.GOOS, core.ErrUnsupported)
}
