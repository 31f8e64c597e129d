package health

import (
	"context"
	"fmt"
)

// Pinger is the subset of a database pool used by [Database]. *pgxpool.Pool
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a [Checker] that pings the database.
func Database(db Pinger) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			if db == nil {
				return fmt.Errorf("no database configured")
			}
			return db.Ping(ctx)
		},
	}
}

// ModelStatus reports the state of a lazily loaded model. The whisper
// transcriber exposes these via its Loaded and LoadErr methods.
type ModelStatus interface {
	Loaded() bool
	LoadErr() error
}

// Transcriber returns a [Checker] for the speech-to-text model. A model that
// has not been loaded yet passes the check, loading is deferred until the
// first chunk arrives and an idle process is still ready. A model whose load
// failed stays failed, so the check reports it.
func Transcriber(m ModelStatus) Checker {
	return Checker{
		Name: "transcriber",
		Check: func(ctx context.Context) error {
			if m == nil {
				return fmt.Errorf("no transcriber configured")
			}
			if err := m.LoadErr(); err != nil {
				return err
			}
			return nil
		},
	}
}
