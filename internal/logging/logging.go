// Package logging constructs the single structured logger threaded through
// the client (spec §4.K). Log records go to stderr only — stdout is
// reserved for the chat transcript and the editor's line.
package logging

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// New builds a leveled logger whose level is derived from the -d count:
// 0 -> Warn, 1 -> Info, 2 -> Debug, 3+ -> Trace.
func New(debugLevel int) hclog.Logger {
	level := hclog.Warn
	switch {
	case debugLevel >= 3:
		level = hclog.Trace
	case debugLevel == 2:
		level = hclog.Debug
	case debugLevel == 1:
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "oicb",
		Level:      level,
		Output:     os.Stderr,
		JSONFormat: false,
	})
}
