package ingester

import (
	"time"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/logging"
	"github.com/backupmon/backupmon/internal/common/util"
)

// RunQueueConsumer invokes enough workers to drain the current backlog. Failed invocations are logged and
// counted but never returned; the call only fails when the backlog can not be read.
func (i *Ingester) RunQueueConsumer(ctx *bmcontext.Context) error {
	available, err := i.queue.GetAvailableReceivedBackupResults(ctx)
	if err != nil {
		return err
	}
	i.metrics.RecordBacklog(available)

	if available <= 0 {
		ctx.Log.Debug("No backup results available in queue")
		return nil
	}

	workerCount := i.GetWorkerInvokeCount(available)
	ctx.Log.WithField("availableResults", available).
		WithField("workerCount", workerCount).
		Info("Invoking queue workers")

	g, groupCtx := bmcontext.ErrGroup(ctx)
	for w := 0; w < workerCount; w++ {
		request := &WorkerRequest{RequestId: util.NewULID(), MaxResults: i.config.DequeueSize()}
		g.Go(func() error {
			i.invokeWorker(groupCtx, request)
			return nil
		})
	}
	return g.Wait()
}

func (i *Ingester) invokeWorker(ctx *bmcontext.Context, request *WorkerRequest) {
	ctx = bmcontext.WithLogField(ctx, "requestId", request.RequestId)
	payload, err := marshalWorkerRequest(request)
	if err == nil {
		err = i.invoker.InvokeQueueWorker(ctx, payload)
	}
	if err != nil {
		i.metrics.RecordWorkerInvokeError()
		logging.WithStacktrace(ctx.Log, err).Error("Failed to invoke queue worker")
		return
	}
	i.metrics.RecordWorkerInvoked()
}

// RunQueueConsumerLoop runs the consumer every interval until ctx is cancelled.
func (i *Ingester) RunQueueConsumerLoop(ctx *bmcontext.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := i.RunQueueConsumer(ctx); err != nil {
			logging.WithStacktrace(ctx.Log, err).Error("Error running queue consumer")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
