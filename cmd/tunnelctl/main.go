package main

import "secure-tunnel/internal/cli"

func main() {
	cli.Execute()
}
