package storage

import (
	"bytes"
	"context"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/ingester/configuration"
	"github.com/backupmon/backupmon/internal/model"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	s3.ListObjectsV2APIClient
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps content as objects in a bucket, beneath an optional key prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Store(client S3API, bucket string, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// NewS3Client creates a client from the default AWS configuration chain. Static credentials and a custom
// endpoint are used when configured.
func NewS3Client(ctx context.Context, cfg configuration.S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyId != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyId, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *S3Store) PutBackupResultContent(ctx *bmcontext.Context, deliveryType model.DeliveryType, backupId string, content []byte) error {
	if err := validateId("backupId", backupId); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(receivedKey(deliveryType, backupId))),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return errors.Wrapf(err, "error storing content for %s", backupId)
	}
	return nil
}

func (s *S3Store) GetBackupResultContent(ctx *bmcontext.Context, backupId string) ([]byte, error) {
	if err := validateId("backupId", backupId); err != nil {
		return nil, err
	}
	for _, deliveryType := range model.DeliveryTypes {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(receivedKey(deliveryType, backupId))),
		})
		if isNoSuchKey(err) {
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "error reading content for %s", backupId)
		}
		content, err := io.ReadAll(out.Body)
		_ = out.Body.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "error reading content for %s", backupId)
		}
		return content, nil
	}
	return nil, notFound(backupId)
}

// ArchiveBackupResultContent copies the object to its archived key and then deletes the original.
func (s *S3Store) ArchiveBackupResultContent(ctx *bmcontext.Context, backupId string, ingestId string) error {
	if err := validateId("backupId", backupId); err != nil {
		return err
	}
	if err := validateId("ingestId", ingestId); err != nil {
		return err
	}
	for _, deliveryType := range model.DeliveryTypes {
		source := s.objectKey(receivedKey(deliveryType, backupId))
		_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			CopySource: aws.String(copySource(s.bucket, source)),
			Key:        aws.String(s.objectKey(archivedKey(deliveryType, backupId, ingestId))),
		})
		if isNoSuchKey(err) {
			continue
		} else if err != nil {
			return errors.Wrapf(err, "error archiving content for %s", backupId)
		}

		_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(source),
		})
		if err != nil {
			return errors.Wrapf(err, "error removing archived content for %s", backupId)
		}
		return nil
	}
	return notFound(backupId)
}

// copySource percent-encodes bucket and key for CopyObject, which decodes its source before looking it up.
func copySource(bucket string, key string) string {
	segments := strings.Split(path.Join(bucket, key), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}

func (s *S3Store) FindOrphanedBackupResultContent(
	ctx *bmcontext.Context,
	deliveryType model.DeliveryType,
	minimumAge time.Duration,
) ([]*model.OrphanedBackupResultContent, error) {
	now := s.now()
	orphans := []*model.OrphanedBackupResultContent{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.objectKey(receivedPrefix(deliveryType))),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "error listing %s content", deliveryType)
		}
		for _, obj := range page.Contents {
			created := aws.ToTime(obj.LastModified)
			backupId, ok := backupIdFromKey(aws.ToString(obj.Key))
			if !ok || !isOrphaned(created, now, minimumAge) {
				continue
			}
			orphans = append(orphans, &model.OrphanedBackupResultContent{
				DeliveryType: deliveryType,
				BackupId:     backupId,
				CreateDate:   created.UTC(),
			})
		}
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].CreateDate.Before(orphans[j].CreateDate) })
	return orphans, nil
}

func isNoSuchKey(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}
