package service

import "context"

// BlobStore fetches previously uploaded object bytes by key, the one
// capability the resumable-upload commit path needs from blob storage.
type BlobStore interface {
	Download(ctx context.Context, bucket, object string) ([]byte, error)
}
