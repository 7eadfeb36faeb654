// Package extract maps backup types to the extractors able to read their results.
package extract

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/extract/email"
	"github.com/backupmon/backupmon/internal/extract/httppost"
	"github.com/backupmon/backupmon/internal/model"
)

// MetricsFunc extracts metrics from stored backup result content.
type MetricsFunc func(ctx *bmcontext.Context, content []byte) (*model.BackupResultMetrics, error)

// Parser holds the extractors of one backup type. A nil extractor means the delivery type is not supported.
type Parser struct {
	Email    MetricsFunc
	HttpPost MetricsFunc
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: map[string]Parser{}}
}

// DefaultRegistry knows about Arq, which reports by e-mail or HTTP post, and generic JSON posts.
func DefaultRegistry() *Registry {
	return NewRegistry().
		Register("arq", Parser{Email: email.ExtractMetrics, HttpPost: httppost.ExtractMetrics}).
		Register("json", Parser{HttpPost: httppost.ExtractMetrics})
}

// Register adds or replaces the parser for a backup type.
func (r *Registry) Register(backupType string, parser Parser) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[backupType] = parser
	return r
}

func (r *Registry) Get(backupType string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	parser, ok := r.parsers[backupType]
	return parser, ok
}

// BackupTypes returns the registered backup types.
func (r *Registry) BackupTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.parsers))
	for backupType := range r.parsers {
		types = append(types, backupType)
	}
	return types
}

func (r *Registry) ExtractEmailMetrics(ctx *bmcontext.Context, backupType string, content []byte) (*model.BackupResultMetrics, error) {
	parser, ok := r.Get(backupType)
	if !ok {
		return nil, errors.Errorf("Parser not available for %s", quote(backupType))
	}
	if parser.Email == nil {
		return nil, errors.Errorf("Parser %s does not support metrics delivered using e-mail", quote(backupType))
	}
	return parser.Email(ctx, content)
}

func (r *Registry) ExtractHttpPostMetrics(ctx *bmcontext.Context, backupType string, content []byte) (*model.BackupResultMetrics, error) {
	parser, ok := r.Get(backupType)
	if !ok {
		return nil, errors.Errorf("Parser not available for %s", quote(backupType))
	}
	if parser.HttpPost == nil {
		return nil, errors.Errorf("Parser %s does not support metrics delivered using HTTP post", quote(backupType))
	}
	return parser.HttpPost(ctx, content)
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
