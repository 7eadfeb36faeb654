package logging

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithStacktrace(t *testing.T) {
	err := errors.WithMessage(errors.New("root"), "wrapped")
	entry := WithStacktrace(log.NewEntry(log.New()), err)

	assert.Equal(t, err, entry.Data[log.ErrorKey])
	assert.NotNil(t, entry.Data[Stacktrace])
}

func TestWithStacktrace_PlainError(t *testing.T) {
	entry := WithStacktrace(log.NewEntry(log.New()), plainError("boom"))

	_, hasStack := entry.Data[Stacktrace]
	assert.False(t, hasStack)
}

func TestExtractStack_Innermost(t *testing.T) {
	root := errors.New("root")
	err := errors.Wrap(root, "outer")

	assert.Equal(t, root.(stackTracer).StackTrace(), ExtractStack(err))
}

func TestExtractStack_FollowsUnwrap(t *testing.T) {
	root := errors.New("root")
	err := fmt.Errorf("ingesting: %w", root)

	assert.Equal(t, root.(stackTracer).StackTrace(), ExtractStack(err))
	assert.Nil(t, ExtractStack(fmt.Errorf("ingesting: %w", plainError("boom"))))
}

func TestTopmostWithCause(t *testing.T) {
	root := plainError("root")
	withStack := errors.WithStack(root)
	err := errors.WithMessage(withStack, "outer")

	assert.Equal(t, withStack, TopmostWithCause(err))
	assert.Equal(t, root, errors.Cause(err))
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		config Config
		valid  bool
	}{
		"defaults":      {config: Config{}, valid: true},
		"debug json":    {config: Config{Level: "DEBUG", Format: "json"}, valid: true},
		"warn text":     {config: Config{Level: "warn", Format: "TEXT"}, valid: true},
		"bad level":     {config: Config{Level: "chatty"}, valid: false},
		"bad formatter": {config: Config{Format: "xml"}, valid: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := validate(tc.config)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestPrometheusHook(t *testing.T) {
	hook := NewPrometheusHook()
	require.Same(t, hook.counter, NewPrometheusHook().counter)

	logger := log.New()
	logger.AddHook(hook)
	before := testutil.ToFloat64(hook.counter.WithLabelValues("warning"))
	logger.Warn("careful")
	assert.Equal(t, before+1, testutil.ToFloat64(hook.counter.WithLabelValues("warning")))
}

type plainError string

func (e plainError) Error() string { return string(e) }
