package port

import (
	"context"
	"io"
)

// ArchiveInfo describes an uploaded frame archive. Storage adapters may
// attach it to the object as metadata.
type ArchiveInfo struct {
	SourceKey   string
	SavedFrames int
	Stride      int
	Format      string
}

type VideoStorage interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
	UploadArchive(ctx context.Context, objectKey string, reader io.Reader, size int64, info ArchiveInfo) error
}
