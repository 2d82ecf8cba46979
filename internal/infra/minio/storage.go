package minio

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/fiapx/fiapx-frame-sampler/internal/domain/port"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Storage struct {
	client        *miniogo.Client
	uploadBucket  string
	archiveBucket string
}

type StorageConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	UploadBucket  string
	ArchiveBucket string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:        client,
		uploadBucket:  cfg.UploadBucket,
		archiveBucket: cfg.ArchiveBucket,
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.uploadBucket, s.archiveBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// DownloadVideo fetches the source video into destPath for local decoding.
func (s *Storage) DownloadVideo(ctx context.Context, objectKey string, destPath string) error {
	if err := s.client.FGetObject(ctx, s.uploadBucket, objectKey, destPath, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("download %s/%s: %w", s.uploadBucket, objectKey, err)
	}
	return nil
}

// UploadArchive stores the frame archive with its sampling summary as user
// metadata, so listings can show frame counts without opening the zip.
func (s *Storage) UploadArchive(ctx context.Context, objectKey string, reader io.Reader, size int64, info port.ArchiveInfo) error {
	_, err := s.client.PutObject(ctx, s.archiveBucket, objectKey, reader, size, miniogo.PutObjectOptions{
		ContentType:  "application/zip",
		UserMetadata: archiveMetadata(info),
	})
	if err != nil {
		return fmt.Errorf("upload archive %s/%s: %w", s.archiveBucket, objectKey, err)
	}
	return nil
}

func archiveMetadata(info port.ArchiveInfo) map[string]string {
	meta := map[string]string{
		"saved-frames": strconv.Itoa(info.SavedFrames),
		"stride":       strconv.Itoa(info.Stride),
	}
	if info.SourceKey != "" {
		meta["source-key"] = info.SourceKey
	}
	if info.Format != "" {
		meta["frame-format"] = info.Format
	}
	return meta
}
