//go:build windows

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"secure-tunnel/internal/platform"
	platformWindows "secure-tunnel/internal/platform/windows"
	"secure-tunnel/internal/winsvc"
)

func newPlatform(opts platform.Options) (*platform.Platform, error) {
	return platformWindows.NewPlatform(opts), nil
}

// host runs fn under the SCM when launched as a service, else on the console.
func host(serviceMode bool, fn func(ctx context.Context) error) error {
	if serviceMode || winsvc.IsWindowsService() {
		return winsvc.RunService(fn)
	}
	return runConsole(fn)
}

// runSubcommand handles install, uninstall, start and stop.
func runSubcommand(name string, args []string) bool {
	var err error
	var done string
	switch name {
	case "install":
		fs := flag.NewFlagSet("install", flag.ExitOnError)
		configPath := fs.String("config", "", "Path to configuration file (optional)")
		fs.Parse(args)

		var exePath string
		exePath, err = os.Executable()
		if err == nil {
			err = winsvc.InstallService(exePath, *configPath)
		}
		done = "Service installed successfully."
	case "uninstall":
		err = winsvc.UninstallService()
		done = "Service uninstalled successfully."
	case "start":
		err = winsvc.StartService()
		done = "Service started successfully."
	case "stop":
		err = winsvc.StopService()
		done = "Service stopped successfully."
	default:
		return false
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(done)
	return true
}
