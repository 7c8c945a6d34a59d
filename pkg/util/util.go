package util

import (
	"context"
	"fmt"
	"time"

	"github.com/rebuild-dev/rebuild-server/pkg/logging"
)

var log = logging.GetLogger("util")

// RetryExponentialAttemptsContext executes the passed function
// with exponentially increasing time in between starting at the passed sleep duration
// up to a maximum of attempts tries as long as the context is not done.
func RetryExponentialAttemptsContext(
	ctx context.Context, attempts int, sleep time.Duration, f func() error,
) (err error) {
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return fmt.Errorf("stopped retry due to: %w", ctx.Err())
		} else if err = f(); err == nil {
			return nil
		}
		log.WithField("count", i).WithError(err).Debug("retrying after error")
		select {
		case <-ctx.Done():
		case <-time.After(sleep):
		}
		sleep *= 2
	}
	return err
}
