package main

import "AutoFlip/pkg/logging"

// Host module loggers
var (
	LogDebug = logging.LogDebug
	LogInfo  = logging.LogInfo
	LogWarn  = logging.LogWarn
	LogError = logging.LogError
)
