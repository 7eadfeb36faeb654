package logging

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stacktrace is the log field holding the stack of the logged error.
const Stacktrace = "stacktrace"

type stackTracer interface {
	StackTrace() errors.StackTrace
}

type causer interface {
	Cause() error
}

// WithStacktrace adds err to the entry, together with the stack recorded where err was first created.
func WithStacktrace(logger *logrus.Entry, err error) *logrus.Entry {
	logger = logger.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		logger = logger.WithField(Stacktrace, stack)
	}
	return logger
}

// ExtractStack returns the innermost pkg/errors stack in the chain of err, following both Cause and Unwrap,
// or nil if the chain has none.
func ExtractStack(err error) errors.StackTrace {
	var innermost errors.StackTrace
	for err != nil {
		if tracer, ok := err.(stackTracer); ok {
			innermost = tracer.StackTrace()
		}
		err = next(err)
	}
	return innermost
}

func next(err error) error {
	if c, ok := err.(causer); ok {
		return c.Cause()
	}
	return errors.Unwrap(err)
}
