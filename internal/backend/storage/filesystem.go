package storage

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/model"
)

// FilesystemStore keeps content as files beneath a root directory.
type FilesystemStore struct {
	root string
	now  func() time.Time
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create storage root %s", root)
	}
	return &FilesystemStore{root: root, now: time.Now}, nil
}

func (s *FilesystemStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FilesystemStore) PutBackupResultContent(ctx *bmcontext.Context, deliveryType model.DeliveryType, backupId string, content []byte) error {
	if err := validateId("backupId", backupId); err != nil {
		return err
	}
	target := s.path(receivedKey(deliveryType, backupId))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.WithStack(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return errors.WithStack(err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "error writing content for %s", backupId)
	}
	if err := tmp.Close(); err != nil {
		return errors.WithStack(err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.Wrapf(err, "error storing content for %s", backupId)
	}
	ctx.Log.Debugf("Stored %d bytes for backup %s", len(content), backupId)
	return nil
}

func (s *FilesystemStore) GetBackupResultContent(_ *bmcontext.Context, backupId string) ([]byte, error) {
	if err := validateId("backupId", backupId); err != nil {
		return nil, err
	}
	for _, deliveryType := range model.DeliveryTypes {
		content, err := os.ReadFile(s.path(receivedKey(deliveryType, backupId)))
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "error reading content for %s", backupId)
		}
		return content, nil
	}
	return nil, notFound(backupId)
}

func (s *FilesystemStore) ArchiveBackupResultContent(_ *bmcontext.Context, backupId string, ingestId string) error {
	if err := validateId("backupId", backupId); err != nil {
		return err
	}
	if err := validateId("ingestId", ingestId); err != nil {
		return err
	}
	for _, deliveryType := range model.DeliveryTypes {
		source := s.path(receivedKey(deliveryType, backupId))
		if _, err := os.Stat(source); os.IsNotExist(err) {
			continue
		} else if err != nil {
			return errors.WithStack(err)
		}

		target := s.path(archivedKey(deliveryType, backupId, ingestId))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.WithStack(err)
		}
		if err := os.Rename(source, target); err != nil {
			return errors.Wrapf(err, "error archiving content for %s", backupId)
		}
		return nil
	}
	return notFound(backupId)
}

func (s *FilesystemStore) FindOrphanedBackupResultContent(
	_ *bmcontext.Context,
	deliveryType model.DeliveryType,
	minimumAge time.Duration,
) ([]*model.OrphanedBackupResultContent, error) {
	entries, err := os.ReadDir(s.path(receivedPrefix(deliveryType)))
	if os.IsNotExist(err) {
		return []*model.OrphanedBackupResultContent{}, nil
	} else if err != nil {
		return nil, errors.WithStack(err)
	}

	now := s.now()
	orphans := []*model.OrphanedBackupResultContent{}
	for _, entry := range entries {
		if entry.IsDir() || entry.Name()[0] == '.' {
			continue
		}
		info, err := entry.Info()
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			return nil, errors.WithStack(err)
		}
		backupId, ok := backupIdFromKey(entry.Name())
		if !ok || !isOrphaned(info.ModTime(), now, minimumAge) {
			continue
		}
		orphans = append(orphans, &model.OrphanedBackupResultContent{
			DeliveryType: deliveryType,
			BackupId:     backupId,
			CreateDate:   info.ModTime().UTC(),
		})
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].CreateDate.Before(orphans[j].CreateDate) })
	return orphans, nil
}
