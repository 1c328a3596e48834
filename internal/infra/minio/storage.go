package minio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Storage reads raw uploads and writes encoded media. Uploads and encoded
// output live in separate buckets.
type Storage struct {
	client       *miniogo.Client
	uploadBucket string
	mediaBucket  string
	mediaBaseURL string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	UploadBucket string
	MediaBucket  string
	MediaBaseURL string
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
		client:       client,
		uploadBucket: cfg.UploadBucket,
		mediaBucket:  cfg.MediaBucket,
		mediaBaseURL: strings.TrimSuffix(cfg.MediaBaseURL, "/"),
	}, nil
}

func (s *Storage) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.uploadBucket, s.mediaBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, miniogo.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

func (s *Storage) Download(ctx context.Context, objectKey string, destPath string) error {
	return s.client.FGetObject(ctx, s.uploadBucket, objectKey, destPath, miniogo.GetObjectOptions{})
}

// UploadDir uploads every regular file under localDir beneath remotePrefix,
// preserving relative paths.
func (s *Storage) UploadDir(ctx context.Context, remotePrefix string, localDir string) error {
	return filepath.Walk(localDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		objectKey := filepath.ToSlash(filepath.Join(remotePrefix, rel))
		_, err = s.client.FPutObject(ctx, s.mediaBucket, objectKey, path, miniogo.PutObjectOptions{
			ContentType: contentTypeFor(path),
		})
		if err != nil {
			return fmt.Errorf("upload %s: %w", objectKey, err)
		}
		return nil
	})
}

// Copy performs a server-side copy from the upload bucket to the media
// bucket, used by the pass-through encode mode.
func (s *Storage) Copy(ctx context.Context, srcKey string, destKey string) error {
	_, err := s.client.CopyObject(ctx,
		miniogo.CopyDestOptions{Bucket: s.mediaBucket, Object: destKey},
		miniogo.CopySrcOptions{Bucket: s.uploadBucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("copy %s to %s: %w", srcKey, destKey, err)
	}
	return nil
}

func (s *Storage) URLFor(objectKey string) string {
	return s.mediaBaseURL + "/" + strings.TrimPrefix(objectKey, "/")
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4":
		return "video/mp4"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	default:
		return "application/octet-stream"
	}
}
