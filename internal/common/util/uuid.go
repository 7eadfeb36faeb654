package util

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

var (
	entropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	m       sync.Mutex
)

// NewULID returns a lower case ULID. Ingest ids and queue message ids are ULIDs so they sort by creation time.
func NewULID() string {
	m.Lock()
	defer m.Unlock()
	return strings.ToLower(ulid.MustNew(ulid.Now(), entropy).String())
}

// NewBackupId returns a random id for a received backup result.
func NewBackupId() string {
	return uuid.New().String()
}

// NewClientKey returns a random client key.
func NewClientKey() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
