// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package ossupload optionally mirrors detection_dir outputs to an S3-
// compatible object store, so a ground station without local review
// capacity can still archive candidates. Disabled by default (Uploader is
// nil, a no-op).
package ossupload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Uploader pushes detection artifacts to a bucket.
type Uploader interface {
	Upload(ctx context.Context, localPath, remoteKey string) error
}

// MinioUploader uploads through an S3-compatible endpoint via minio-go.
type MinioUploader struct {
	client *minio.Client
	bucket string
}

// NewMinioUploader connects to endpoint with the given credentials and
// target bucket. useSSL selects http vs https.
func NewMinioUploader(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioUploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("ossupload: connecting to %s: %w", endpoint, err)
	}
	return &MinioUploader{client: client, bucket: bucket}, nil
}

// Upload streams the file at localPath to remoteKey within the bucket.
func (u *MinioUploader) Upload(ctx context.Context, localPath, remoteKey string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("ossupload: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("ossupload: stat %s: %w", localPath, err)
	}
	contentType := contentTypeFor(localPath)
	_, err = u.client.PutObject(ctx, u.bucket, remoteKey, f, info.Size(), minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("ossupload: uploading %s: %w", localPath, err)
	}
	return nil
}

func contentTypeFor(path string) string {
	switch filepath.Ext(path) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".fits", ".fit":
		return "application/octet-stream"
	default:
		return "application/octet-stream"
	}
}

// NoOpUploader discards every upload, the default when object storage is
// not configured.
type NoOpUploader struct{}

func (NoOpUploader) Upload(ctx context.Context, localPath, remoteKey string) error { return nil }
