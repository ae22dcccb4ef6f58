package main

import (
	"os"

	"github.com/rebolloluis/family-tree/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error().Err(err).Msg("treectl failed")
		os.Exit(1)
	}
}
