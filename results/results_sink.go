package results

import (
	"context"
	"os"
	"path/filepath"

	"npcs-desk/utils"
)

// Sink persists exported results and returns where they went.
type Sink interface {
	Store(ctx context.Context, name, contentType string, payload []byte) (string, error)
}

type FileSink struct {
	dir string
}

func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

func (sink *FileSink) Store(ctx context.Context, name, contentType string, payload []byte) (string, error) {
	if err := os.MkdirAll(sink.dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(sink.dir, filepath.Base(name))
	if err := utils.WriteFileAtomic(path, payload); err != nil {
		return "", err
	}
	return path, nil
}
