//go:build linux

package main

import (
	"secure-tunnel/internal/platform"
	platformLinux "secure-tunnel/internal/platform/linux"
)

func newPlatform(opts platform.Options) (*platform.Platform, error) {
	return platformLinux.NewPlatform(opts), nil
}
