package cli

import (
	"context"
	"errors"
)

// Root restores a stored session, if any, and runs the REPL until the user
// exits or input ends.
func (a *App) Root(ctx context.Context) {

	printlnFn("Welcome to sessionkeeper CLI (type 'help' for commands)")

	if err := a.Restore(ctx); err != nil && !errors.Is(err, errNoSession) {
		a.logger.Warn(ctx, "stored session not restored", "error", err)
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}
