package main

import "github.com/mit-27/panora-sync/internal/cli"

func main() {
	cli.Execute()
}
