// Package lifecycle holds timing constants shared by start/stop hooks.
package lifecycle

import "time"

// DefaultTimeout bounds every fx OnStart/OnStop hook and graceful shutdown.
const DefaultTimeout = 15 * time.Second
