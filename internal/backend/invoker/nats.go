package invoker

import (
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/logging"
)

const (
	acceptedReply = "accepted"

	noRespondersAttempts = 3
	noRespondersDelay    = 200 * time.Millisecond
)

// NatsInvoker publishes worker payloads as NATS requests. A worker subscribed to the subject replies as soon as it
// has accepted the payload, so an invocation fails when no worker is listening.
type NatsInvoker struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

func NewNatsInvoker(conn *nats.Conn, subject string, timeout time.Duration) *NatsInvoker {
	return &NatsInvoker{conn: conn, subject: subject, timeout: timeout}
}

// InvokeQueueWorker retries a few times when no worker is subscribed, covering workers that are restarting.
func (n *NatsInvoker) InvokeQueueWorker(ctx *bmcontext.Context, payload []byte) error {
	var reply *nats.Msg
	err := retry.Do(
		func() error {
			requestCtx, cancel := bmcontext.WithTimeout(ctx, n.timeout)
			defer cancel()
			var err error
			reply, err = n.conn.RequestWithContext(requestCtx, n.subject, payload)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(noRespondersAttempts),
		retry.Delay(noRespondersDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, nats.ErrNoResponders) }),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return errors.Wrapf(err, "error invoking worker on subject %s", n.subject)
	}
	if string(reply.Data) != acceptedReply {
		return errors.Errorf("worker on subject %s rejected invocation: %s", n.subject, reply.Data)
	}
	return nil
}

// ServeQueueWorkers runs worker for every request published on subject until ctx is cancelled, then waits for
// running workers to return. Subscribers sharing queueGroup split the requests between them.
func ServeQueueWorkers(ctx *bmcontext.Context, conn *nats.Conn, subject string, queueGroup string, worker WorkerFunc) error {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		closed bool
	)
	sub, err := conn.QueueSubscribe(subject, queueGroup, func(msg *nats.Msg) {
		mu.Lock()
		if closed {
			mu.Unlock()
			_ = msg.Respond([]byte("shutting down"))
			return
		}
		wg.Add(1)
		mu.Unlock()

		if err := msg.Respond([]byte(acceptedReply)); err != nil {
			wg.Done()
			ctx.Log.Errorf("Error acknowledging worker request: %v", err)
			return
		}
		go func() {
			defer wg.Done()
			if err := worker(ctx, msg.Data); err != nil {
				logging.WithStacktrace(ctx.Log, err).Error("Queue worker failed")
			}
		}()
	})
	if err != nil {
		return errors.Wrapf(err, "error subscribing to subject %s", subject)
	}
	ctx.Log.Infof("Serving queue workers on subject %s", subject)

	<-ctx.Done()
	mu.Lock()
	closed = true
	mu.Unlock()
	if err := sub.Drain(); err != nil {
		ctx.Log.Warnf("Error draining subscription to %s: %v", subject, err)
	}
	wg.Wait()
	return nil
}
