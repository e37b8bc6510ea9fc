//go:build darwin

package main

import (
	"secure-tunnel/internal/platform"
	platformDarwin "secure-tunnel/internal/platform/darwin"
)

func newPlatform(opts platform.Options) (*platform.Platform, error) {
	return platformDarwin.NewPlatform(opts), nil
}
