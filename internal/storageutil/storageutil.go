package storageutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/pierrec/lz4/v4"
)

const (
	timestampLayout = "20060102150405"
	dateLayout      = "20060102"

	storageTimeout = 30 * time.Second
)

// ErrObjectNotFound indicates an object was not found.
var ErrObjectNotFound = errors.New("object not found")

type ReadSizeCloser interface {
	io.Reader
	io.Closer
	Size() int64
}

// ObjectHandler provides common interface for multiple storage providers.
type ObjectHandler interface {
	// Put writes a file to the storage provider with name being the path.
	Put(ctx context.Context, name string) (io.WriteCloser, error)
	// Get reads a file from the storage provider with name being the path.
	// If a key was not found, it will return ErrObjectNotFound.
	Get(ctx context.Context, name string) (ReadSizeCloser, error)
}

// CompressedWrite encodes d as JSON and writes it lz4 compressed.
func CompressedWrite(ctx context.Context, b ObjectHandler, objectName string, d interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	ow, err := b.Put(ctx, objectName)
	if err != nil {
		return err
	}
	zw := lz4.NewWriter(ow)
	_ = zw.Apply(lz4.CompressionLevelOption(lz4.Level9))
	err = json.NewEncoder(zw).Encode(d)
	if err != nil {
		_ = ow.Close()
		return err
	}
	err = zw.Close()
	if err != nil {
		_ = ow.Close()
		return err
	}
	return ow.Close()
}

// UnmarshalCompressed reads compressed JSON data and unmarshals it.
func UnmarshalCompressed(ctx context.Context, b ObjectHandler, objectName string, d interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	or, err := b.Get(ctx, objectName)
	if err != nil {
		return err
	}
	defer or.Close()
	return json.NewDecoder(lz4.NewReader(or)).Decode(d)
}

// WriteObject writes data as is.
func WriteObject(ctx context.Context, b ObjectHandler, objectName string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	ow, err := b.Put(ctx, objectName)
	if err != nil {
		return err
	}
	if _, err := ow.Write(data); err != nil {
		_ = ow.Close()
		return err
	}
	return ow.Close()
}

// ReadObject reads a whole object.
func ReadObject(ctx context.Context, b ObjectHandler, objectName string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, storageTimeout)
	defer cancel()

	or, err := b.Get(ctx, objectName)
	if err != nil {
		return nil, err
	}
	defer or.Close()
	return io.ReadAll(or)
}

// ListingPath returns where the merged listing produced at t is stored.
func ListingPath(t time.Time) string {
	return fmt.Sprintf("merged_stack/stacktrace_%s.txt", t.Format(timestampLayout))
}

// BatchPath returns where the raw batch collected at t is stored.
func BatchPath(t time.Time) string {
	return fmt.Sprintf("url_stack/stacktrace_%s.json.lz4", t.Format(timestampLayout))
}

func SpeedscopePath(name string) string {
	return fmt.Sprintf("speedscope/%s.json", name)
}

// DefaultRoot is the output directory used when none is configured, one per
// day.
func DefaultRoot(t time.Time) string {
	return filepath.Join(os.TempDir(), "output_"+t.Format(dateLayout))
}

// ServiceListingPath returns where the service stores the listing of a merge.
func ServiceListingPath(id string) string {
	return fmt.Sprintf("merged_stack/%s.txt", id)
}
