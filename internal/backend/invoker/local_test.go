package invoker

import (
	"sort"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
)

func TestLocalInvoker(t *testing.T) {
	var (
		mu       sync.Mutex
		payloads []string
		fields   []interface{}
	)
	invoker := NewLocalInvoker(bmcontext.Background(), func(ctx *bmcontext.Context, payload []byte) error {
		mu.Lock()
		defer mu.Unlock()
		payloads = append(payloads, string(payload))
		fields = append(fields, ctx.Log.Data["run"])
		if string(payload) == "b" {
			return errors.New("worker failed")
		}
		return nil
	})

	ctx := bmcontext.WithLogField(bmcontext.Background(), "run", 1)
	for _, payload := range []string{"a", "b", "c"} {
		require.NoError(t, invoker.InvokeQueueWorker(ctx, []byte(payload)))
	}
	invoker.Wait()

	sort.Strings(payloads)
	assert.Equal(t, []string{"a", "b", "c"}, payloads)
	assert.Equal(t, []interface{}{1, 1, 1}, fields)
}

func TestLocalInvoker_OutlivesInvocationContext(t *testing.T) {
	done := make(chan error, 1)
	invoker := NewLocalInvoker(bmcontext.Background(), func(ctx *bmcontext.Context, _ []byte) error {
		done <- ctx.Err()
		return nil
	})

	ctx, cancel := bmcontext.WithCancel(bmcontext.Background())
	cancel()
	require.NoError(t, invoker.InvokeQueueWorker(ctx, nil))
	invoker.Wait()
	assert.NoError(t, <-done)
}

func TestLocalInvoker_ShuttingDown(t *testing.T) {
	base, cancel := bmcontext.WithCancel(bmcontext.Background())
	cancel()
	invoker := NewLocalInvoker(base, func(_ *bmcontext.Context, _ []byte) error {
		t.Fatal("worker must not run")
		return nil
	})

	assert.Error(t, invoker.InvokeQueueWorker(bmcontext.Background(), nil))
}
