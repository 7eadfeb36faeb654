package util

import (
	"time"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
)

// RetryUntilSuccess calls performAction until it succeeds or ctx is done, waiting interval between attempts.
// onError is called with every failure. The last error is returned if ctx finished first.
func RetryUntilSuccess(ctx *bmcontext.Context, interval time.Duration, performAction func() error, onError func(error)) error {
	for {
		err := performAction()
		if err == nil {
			return nil
		}
		onError(err)

		select {
		case <-ctx.Done():
			return err
		case <-time.After(interval):
		}
	}
}
