// Package archive bundles sampled frames into a zip file for upload.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type Zipper struct{}

func NewZipper() *Zipper {
	return &Zipper{}
}

// CreateArchive writes filePaths into a flat zip at outputPath, in the given order.
func (z *Zipper) CreateArchive(ctx context.Context, filePaths []string, outputPath string) (err error) {
	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()

	zw := zip.NewWriter(out)
	for _, fp := range filePaths {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := addFrame(zw, fp); err != nil {
			return fmt.Errorf("add %s to archive: %w", fp, err)
		}
	}
	return zw.Close()
}

func addFrame(zw *zip.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = filepath.Base(path)
	header.Method = compressionFor(path)

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}

// compressionFor stores already-compressed image formats as-is.
func compressionFor(path string) uint16 {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".webp", ".png":
		return zip.Store
	}
	return zip.Deflate
}
