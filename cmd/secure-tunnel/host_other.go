//go:build !windows

package main

import "context"

// runSubcommand handles platform subcommands. None exist outside Windows;
// launchd and systemd units invoke the binary directly.
func runSubcommand(string, []string) bool { return false }

func host(_ bool, fn func(ctx context.Context) error) error {
	return runConsole(fn)
}
