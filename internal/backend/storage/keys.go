// Package storage holds the raw content of received backup results.
//
// Content is written under received/<deliveryType>/<backupId> and moved to
// archived/<deliveryType>/<backupId>/<ingestId> once ingested, so anything left under received/ after a while
// was never ingested.
package storage

import (
	"net/url"
	"path"
	"time"

	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/model"
)

const (
	receivedDir = "received"
	archivedDir = "archived"
)

func receivedKey(deliveryType model.DeliveryType, backupId string) string {
	return path.Join(receivedDir, string(deliveryType), url.PathEscape(backupId))
}

func receivedPrefix(deliveryType model.DeliveryType) string {
	return path.Join(receivedDir, string(deliveryType)) + "/"
}

func archivedKey(deliveryType model.DeliveryType, backupId string, ingestId string) string {
	return path.Join(archivedDir, string(deliveryType), url.PathEscape(backupId), url.PathEscape(ingestId))
}

// backupIdFromKey reverses the escaping applied to the last element of a received key.
func backupIdFromKey(key string) (string, bool) {
	backupId, err := url.PathUnescape(path.Base(key))
	if err != nil {
		return "", false
	}
	return backupId, true
}

func validateId(name string, id string) error {
	if id == "" || id == "." || id == ".." {
		return &bmerrors.ErrInvalidArgument{Name: name, Value: id, Message: "must be a non-empty name"}
	}
	return nil
}

func notFound(backupId string) error {
	return &bmerrors.ErrNotFound{Type: "BackupResultContent", Value: backupId}
}

func isOrphaned(created time.Time, now time.Time, minimumAge time.Duration) bool {
	return now.Sub(created) >= minimumAge
}
