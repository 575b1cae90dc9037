package cmdlog

import (
	"time"

	"github.com/Li-Victor/Twittter/internal/apierr"
	"github.com/Li-Victor/Twittter/internal/logging"
	"github.com/Li-Victor/Twittter/internal/metrics"
)

// Run executes f as the CLI command cmd, counting it and logging the outcome.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	fields := map[string]any{"duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		metrics.IncCommandError(cmd)
		fields["error"] = err.Error()
		if k := apierr.KindOf(err); k != "" {
			fields["kind"] = string(k)
		}
		logging.Error(cmd+"_error", fields)
	} else {
		logging.Debug(cmd+"_ok", fields)
	}
	return err
}
