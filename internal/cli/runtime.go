package cli

import (
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/statemill/statemill/example/shopping"
	"github.com/statemill/statemill/fsm"
	"github.com/statemill/statemill/persistence"
)

// openRuntime opens the database and wires a runtime over the shopping
// model. The caller closes both.
func openRuntime(opts *RootOptions) (*persistence.Persistence, *sql.DB, error) {
	configureLogging(opts)

	cfg, err := resolveConfig(opts)
	if err != nil {
		return nil, nil, err
	}

	db, err := persistence.Open(cfg.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	var pOpts []persistence.Option
	pOpts = append(pOpts, persistence.WithPropertiesFactory(shopping.Properties))
	if cfg.RetryInterval > 0 {
		pOpts = append(pOpts, persistence.WithRetryInterval(time.Duration(cfg.RetryInterval)))
	}
	if cfg.StoreSignals != nil {
		pOpts = append(pOpts, persistence.WithStoreSignals(*cfg.StoreSignals))
	}

	p, err := persistence.New(db,
		shopping.NewRegistry(),
		shopping.Behaviours(fsm.SystemClock{}),
		pOpts...)
	if err != nil {
		db.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to create runtime", err)
	}
	return p, db, nil
}

// configureLogging sets the default slog handler based on the verbose
// flag.
func configureLogging(opts *RootOptions) {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// awaitDrain polls until the in-memory queue is empty or the timeout
// elapses. The worker is asynchronous; one-shot commands wait for it
// before exiting so published signals are applied, not just queued.
func awaitDrain(p *persistence.Persistence, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for p.QueueLen() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
	return true
}
