package serve

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
)

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := bmcontext.WithCancel(bmcontext.Background())
	server := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}

	done := make(chan error, 1)
	go func() { done <- ListenAndServe(ctx, server) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestListenAndServe_ListenFailure(t *testing.T) {
	server := &http.Server{Addr: "not an address", Handler: http.NotFoundHandler()}

	err := ListenAndServe(bmcontext.Background(), server)
	assert.Error(t, err)
}
