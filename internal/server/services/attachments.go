package services

import (
	"context"
	"fmt"
	"time"

	"github.com/akarpov87/taskhive/internal/common"
	"github.com/akarpov87/taskhive/internal/logging"
	sc "github.com/akarpov87/taskhive/internal/server/config"
	"github.com/akarpov87/taskhive/internal/server/perm"
	"github.com/akarpov87/taskhive/internal/server/store"
	"github.com/akarpov87/taskhive/internal/syncmodel"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// indirections over the AWS SDK so presign flows can be exercised in tests
// without a live S3 endpoint
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// AttachmentService issues presigned S3 URLs for attachment blobs. Metadata
// rows travel through the normal sync flow; only the bytes go through here.
type AttachmentService struct {
	store  store.RowStore
	perm   *perm.Evaluator
	config *sc.Config
	logger logging.Logger
}

func NewAttachmentService(s store.RowStore, p *perm.Evaluator, cfg *sc.Config, l logging.Logger) *AttachmentService {
	return &AttachmentService{store: s, perm: p, config: cfg, logger: l.With("module", "attachments")}
}

// GetRandomStorageKey returns a date-partitioned object key for a new blob.
func GetRandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("users/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *AttachmentService) getPresignClient() (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
	})

	return newS3PresignClient(client), nil
}

func (s *AttachmentService) presignPut(ctx context.Context, key string) (string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.PresignValidityDuration))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

func (s *AttachmentService) presignGet(ctx context.Context, key string) (string, error) {
	presignClient, err := s.getPresignClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.PresignValidityDuration))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}

// fetch loads the attachment row and checks the caller can access it.
func (s *AttachmentService) fetch(ctx context.Context, userID, attachmentID string) (syncmodel.Record, error) {
	rec, err := s.store.Get(ctx, syncmodel.TableAttachments, attachmentID)
	if err != nil {
		return nil, err
	}
	if !s.perm.CanAccess(ctx, userID, syncmodel.TableAttachments, attachmentID, rec) {
		return nil, common.ErrPermissionDenied
	}
	return rec, nil
}

// UploadURL assigns the attachment a storage key (if it has none yet),
// persists it and returns a presigned PUT URL for the blob.
func (s *AttachmentService) UploadURL(ctx context.Context, userID, attachmentID string) (string, error) {
	rec, err := s.fetch(ctx, userID, attachmentID)
	if err != nil {
		return "", err
	}

	key := rec.GetString("storage_key")
	if key == "" {
		key = GetRandomStorageKey()
		if err := s.store.Update(ctx, syncmodel.TableAttachments, attachmentID,
			syncmodel.Record{"storage_key": key}); err != nil {
			return "", err
		}
	}

	url, err := s.presignPut(ctx, key)
	if err != nil {
		return "", fmt.Errorf("error presigning upload: %w", err)
	}
	return url, nil
}

// DownloadURL returns a presigned GET URL for the attachment's blob.
// Attachments that were never uploaded have no storage key and 404.
func (s *AttachmentService) DownloadURL(ctx context.Context, userID, attachmentID string) (string, error) {
	rec, err := s.fetch(ctx, userID, attachmentID)
	if err != nil {
		return "", err
	}

	key := rec.GetString("storage_key")
	if key == "" {
		return "", common.ErrNotFound
	}

	url, err := s.presignGet(ctx, key)
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}
	return url, nil
}
