package config

import "time"

// UI constants.
const (
	ErrorColor   = 0xFF0000
	SuccessColor = 0x00FF00
	InfoColor    = 0x0099FF
	WarningColor = 0xFFAA00

	EmbedDefaultColor = 0x2B2D31

	LeaderboardPageSize = 10
)

// Timeouts.
const (
	CommandExecutionTimeout = 10 * time.Second
	DefaultQueryTimeout     = 30 * time.Second
	NetworkDialTimeout      = 5 * time.Second
	NetworkKeepAlive        = 30 * time.Second
)
