// Package invoker starts queue workers on behalf of the consumer, either in this process or on remote workers
// reached over NATS.
package invoker

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/logging"
)

// WorkerFunc runs one queue worker with the payload it was invoked with.
type WorkerFunc func(ctx *bmcontext.Context, payload []byte) error

// LocalInvoker runs each worker in its own goroutine. Workers run under the context the invoker was created with,
// not the context of the invocation, so they outlive the consumer run that started them.
type LocalInvoker struct {
	ctx    *bmcontext.Context
	worker WorkerFunc
	wg     sync.WaitGroup
}

func NewLocalInvoker(ctx *bmcontext.Context, worker WorkerFunc) *LocalInvoker {
	return &LocalInvoker{ctx: ctx, worker: worker}
}

func (l *LocalInvoker) InvokeQueueWorker(ctx *bmcontext.Context, payload []byte) error {
	if err := l.ctx.Err(); err != nil {
		return errors.Wrap(err, "local invoker is shutting down")
	}
	workerCtx := bmcontext.New(l.ctx.Context, ctx.Log)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.worker(workerCtx, payload); err != nil {
			logging.WithStacktrace(workerCtx.Log, err).Error("Queue worker failed")
		}
	}()
	return nil
}

// Wait blocks until every worker started so far has returned.
func (l *LocalInvoker) Wait() {
	l.wg.Wait()
}
