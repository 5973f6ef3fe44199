package graphic

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// normalizeTerminal works around terminal settings termbox cannot handle and
// returns a function undoing the changes.
//
// Under tmux, some TERMINFO values make termbox fail to start, so TERMINFO is
// cleared for the lifetime of the monitor.
func normalizeTerminal() (func(), error) {
	prev, had := os.LookupEnv("TERMINFO")

	if !had || !strings.HasPrefix(os.Getenv("TERM"), "tmux") {
		return func() {}, nil
	}

	if err := os.Unsetenv("TERMINFO"); err != nil {
		return nil, errors.Wrap(err, "failed to clear TERMINFO")
	}

	restore := func() {
		if err := os.Setenv("TERMINFO", prev); err != nil {
			logger.Warnw("failed to restore TERMINFO", "err", err)
		}
	}

	return restore, nil
}
