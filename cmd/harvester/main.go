package main

import "github.com/socialpulse/harvester/internal/cli"

func main() {
	cli.Execute()
}
