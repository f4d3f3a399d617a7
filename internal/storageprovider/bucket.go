package storageprovider

import (
	"context"
	"io"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/getsentry/stackmerge/internal/storageutil"

	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
)

// Bucket implements storageutil.ObjectHandler interface on top of a
// gocloud.dev bucket, any of file:// or gs:// URLs.
type Bucket struct {
	*blob.Bucket
}

func OpenBucket(ctx context.Context, url string) (*Bucket, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, err
	}
	return &Bucket{Bucket: b}, nil
}

// Put writes a file to the storage provider with name being the path.
func (b *Bucket) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return b.NewWriter(ctx, name, nil)
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (b *Bucket) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	r, err := b.NewReader(ctx, name, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, storageutil.ErrObjectNotFound
		}
		return nil, err
	}
	return r, nil
}
