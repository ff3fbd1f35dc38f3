// Package blob uploads finished files to object storage.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrUpload wraps a storage failure. Uploads are not retried here; the
// job queue retries the whole attempt.
var ErrUpload = errors.New("upload failed")

// Uploader stores opaque blobs and returns their public download URLs
type Uploader interface {
	// UploadFile uploads a local file as a raw binary blob, keeping its
	// base file name and overwriting any prior object at the same name.
	UploadFile(ctx context.Context, localPath, folder string) (string, error)
	// UploadImage uploads in-memory image data under the given name.
	UploadImage(ctx context.Context, data []byte, folder, name, contentType string) (string, error)
}

// MinioUploader implements Uploader backed by a MinIO/S3 bucket
type MinioUploader struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinioUploader creates a new uploader for the given bucket
func NewMinioUploader(endpoint, accessKey, secretKey string, useSSL bool, bucket, publicBaseURL string) (*MinioUploader, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}

	return &MinioUploader{
		client:        client,
		bucket:        bucket,
		publicBaseURL: publicBaseURL,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet
func (u *MinioUploader) EnsureBucket(ctx context.Context) error {
	exists, err := u.client.BucketExists(ctx, u.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// UploadFile uploads a local file as an opaque binary blob
func (u *MinioUploader) UploadFile(ctx context.Context, localPath, folder string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: open %s: %v", ErrUpload, localPath, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("%w: stat %s: %v", ErrUpload, localPath, err)
	}

	objectName := path.Join(folder, filepath.Base(localPath))

	_, err = u.client.PutObject(ctx, u.bucket, objectName, file, stat.Size(), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	return u.objectURL(objectName), nil
}

// UploadImage uploads in-memory image data
func (u *MinioUploader) UploadImage(ctx context.Context, data []byte, folder, name, contentType string) (string, error) {
	objectName := path.Join(folder, name)

	_, err := u.client.PutObject(ctx, u.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}

	return u.objectURL(objectName), nil
}

func (u *MinioUploader) objectURL(objectName string) string {
	return fmt.Sprintf("%s/%s/%s", u.publicBaseURL, u.bucket, objectName)
}
