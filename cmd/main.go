package main

import (
	"os"

	"github.com/recallai/recall/cmd/recall"
)

func main() {
	if err := recall.Execute(); err != nil {
		os.Exit(1)
	}
}
