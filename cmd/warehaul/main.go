package main

import "github.com/warehaul/warehaul/internal/cli"

func main() {
	cli.Execute()
}
