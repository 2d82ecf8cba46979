package port

import "context"

// Archiver bundles sampled frame files into a single archive for upload.
type Archiver interface {
	CreateArchive(ctx context.Context, filePaths []string, outputPath string) error
}
