package serve

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
)

const shutdownTimeout = 10 * time.Second

// ListenAndServe runs server until ctx is cancelled, then shuts it down, waiting for in-flight requests to finish.
// It returns nil when the server was stopped by ctx.
func ListenAndServe(ctx *bmcontext.Context, server *http.Server) error {
	errs := make(chan error, 1)
	go func() {
		ctx.Log.Infof("Listening on %s", server.Addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return errors.Wrapf(err, "server on %s failed", server.Addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	ctx.Log.Infof("Stopping server on %s", server.Addr)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrapf(err, "error stopping server on %s", server.Addr)
	}
	if err := <-errs; err != nil && err != http.ErrServerClosed {
		return errors.WithStack(err)
	}
	return nil
}
