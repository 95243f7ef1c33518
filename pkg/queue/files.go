package queue

import (
	"context"
	"os"
	"path/filepath"
)

// FileReader abstracts reading a file node's bytes off the underlying
// filesystem. The node store only ever records size/content_hash; the
// actual bytes live outside the engine, so the processor needs this
// narrow seam to collect file prompt context without pulling a
// filesystem dependency into pkg/node or pkg/ctxapi.
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// OSFileReader reads files relative to Root using the local
// filesystem.
type OSFileReader struct {
	Root string
}

// ReadFile implements FileReader.
func (r OSFileReader) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(r.Root, path))
}
