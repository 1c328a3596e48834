package port

import "context"

// BlobStorage moves media between the object store and the local work dir.
type BlobStorage interface {
	Download(ctx context.Context, objectKey string, destPath string) error
	// UploadDir uploads every file under localDir beneath remotePrefix,
	// preserving relative paths.
	UploadDir(ctx context.Context, remotePrefix string, localDir string) error
	// Copy performs a server-side copy between object keys; the pass-through
	// encode mode publishes the raw upload with it.
	Copy(ctx context.Context, srcKey string, destKey string) error
	// URLFor returns the public location for an object key.
	URLFor(objectKey string) string
}
