// Package main provides the entry point for the comepos CLI.
package main

import (
	"github.com/locie/comepos-fetcher/internal/cli"
)

func main() {
	cli.Execute()
}
