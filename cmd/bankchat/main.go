package main

import (
	"os"

	"bankchat/internal/logger"
	"bankchat/internal/tools"
)

var log = logger.Named("cli")

func main() {
	os.Exit(run())
}

func run() int {
	if logFile, err := logger.Init(logger.DefaultLogPath); err != nil {
		log.Warnf("failed to initialize log file: %v", err)
	} else {
		defer logFile.Close()
	}
	if cmdCloser, _, err := tools.SetupCommandLog(tools.DefaultCommandLogPath); err != nil {
		log.Warnf("failed to initialize command log (%s): %v", tools.DefaultCommandLogPath, err)
	} else if cmdCloser != nil {
		defer cmdCloser.Close()
	}

	if err := newRootCmd().Execute(); err != nil {
		return 1
	}
	return 0
}
