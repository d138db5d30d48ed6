package main

import "github.com/fxperp/fxperpd/internal/cli"

func main() {
	cli.Execute()
}
