package storage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/model"
)

type fakeObject struct {
	content      []byte
	lastModified time.Time
}

// fakeS3 is an in-memory bucket that pages listings two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]fakeObject
	now     time.Time
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: map[string]fakeObject{}, now: time.Now()}
}

func noSuchKey() error {
	return &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Key)] = fakeObject{content: content, lastModified: f.now}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, noSuchKey()
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.content))}, nil
}

func (f *fakeS3) CopyObject(_ context.Context, params *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	decoded, err := url.PathUnescape(aws.ToString(params.CopySource))
	if err != nil {
		return nil, err
	}
	source := strings.TrimPrefix(decoded, f.bucket+"/")
	obj, ok := f.objects[source]
	if !ok {
		return nil, noSuchKey()
	}
	f.objects[aws.ToString(params.Key)] = obj
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(params.Prefix)) && key > aws.ToString(params.ContinuationToken) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{}
	for i, key := range keys {
		if i == 2 {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(keys[i-1])
			break
		}
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(key),
			LastModified: aws.Time(f.objects[key].lastModified),
		})
	}
	return out, nil
}

func TestS3Store_PutGetArchive(t *testing.T) {
	client := newFakeS3("bucket")
	store := NewS3Store(client, "bucket", "backupmon")
	ctx := bmcontext.Background()

	require.NoError(t, store.PutBackupResultContent(ctx, model.DeliveryTypeHttpPost, "backup-1", []byte("post")))
	assert.Contains(t, client.objects, "backupmon/received/httppost/backup-1")

	content, err := store.GetBackupResultContent(ctx, "backup-1")
	require.NoError(t, err)
	assert.Equal(t, "post", string(content))

	require.NoError(t, store.ArchiveBackupResultContent(ctx, "backup-1", "ingest-1"))
	assert.NotContains(t, client.objects, "backupmon/received/httppost/backup-1")
	assert.Equal(t, "post", string(client.objects["backupmon/archived/httppost/backup-1/ingest-1"].content))

	var notFound *bmerrors.ErrNotFound
	_, err = store.GetBackupResultContent(ctx, "backup-1")
	assert.ErrorAs(t, err, &notFound)
	err = store.ArchiveBackupResultContent(ctx, "backup-1", "ingest-2")
	assert.ErrorAs(t, err, &notFound)
}

func TestS3Store_ArchiveEscapedBackupId(t *testing.T) {
	client := newFakeS3("bucket")
	store := NewS3Store(client, "bucket", "backupmon")
	ctx := bmcontext.Background()
	backupId := "<0100018f@email.example.com>"

	require.NoError(t, store.PutBackupResultContent(ctx, model.DeliveryTypeEmail, backupId, []byte("mail")))
	assert.Contains(t, client.objects, "backupmon/received/email/%3C0100018f@email.example.com%3E")

	require.NoError(t, store.ArchiveBackupResultContent(ctx, backupId, "ingest-1"))
	assert.Empty(t, keysWithPrefix(client, "backupmon/received/"))
	assert.Equal(t, "mail", string(client.objects["backupmon/archived/email/%3C0100018f@email.example.com%3E/ingest-1"].content))
}

func TestCopySource(t *testing.T) {
	assert.Equal(t, "bucket/backupmon/received/email/%253Cid%253E", copySource("bucket", "backupmon/received/email/%3Cid%3E"))
	assert.Equal(t, "bucket/received/httppost/backup%201", copySource("bucket", "received/httppost/backup 1"))
}

func keysWithPrefix(client *fakeS3, prefix string) []string {
	var keys []string
	for key := range client.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys
}

func TestS3Store_FindOrphaned(t *testing.T) {
	client := newFakeS3("bucket")
	store := NewS3Store(client, "bucket", "")
	ctx := bmcontext.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	for i, backupId := range []string{"a", "b", "c", "d", "e"} {
		client.now = now.Add(-time.Duration(i) * time.Hour)
		require.NoError(t, store.PutBackupResultContent(ctx, model.DeliveryTypeEmail, backupId, []byte(backupId)))
	}
	client.now = now.Add(-10 * time.Hour)
	require.NoError(t, store.PutBackupResultContent(ctx, model.DeliveryTypeHttpPost, "post", []byte("post")))

	orphans, err := store.FindOrphanedBackupResultContent(ctx, model.DeliveryTypeEmail, 2*time.Hour)
	require.NoError(t, err)
	var ids []string
	for _, orphan := range orphans {
		assert.Equal(t, model.DeliveryTypeEmail, orphan.DeliveryType)
		ids = append(ids, orphan.BackupId)
	}
	assert.Equal(t, []string{"e", "d", "c"}, ids)
}
