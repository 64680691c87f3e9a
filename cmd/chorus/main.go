package main

import (
	"os"

	"github.com/George-Strauch/chorus/cmd/chorus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
