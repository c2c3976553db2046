package main

import "github.com/tansive/minima-mcp/internal/cli"

func main() {
	cli.Execute()
}
