package storage

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type Config struct {
	Dir          string `envconfig:"ATTACHMENTS_DIR" default:"./attachments"`
	MaxSizeBytes int64  `envconfig:"ATTACHMENT_MAX_BYTES" default:"104857600"` // 100 MiB
}

// FileStore keeps attachment files in a single flat directory. Names are
// opaque tokens minted by NewName, never derived from client input.
type FileStore struct {
	dir string
	log *zap.Logger
}

func NewFileStore(cfg Config, log *zap.Logger) (*FileStore, error) {
	if cfg.Dir == "" {
		return nil, errors.New("attachments dir is not set")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "mkdir attachments dir")
	}
	return &FileStore{
		dir: cfg.Dir,
		log: log.Named("filestore"),
	}, nil
}

// NewName mints a fresh collision-free file name.
func NewName(ext string) string {
	return uuid.NewString() + ext
}

func (s *FileStore) Save(name string, r io.Reader) (int64, error) {
	path := s.path(name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "create attachment file")
	}
	written, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.log.Warn("remove partial file", zap.String("name", name), zap.Error(rmErr))
		}
		return 0, errors.Wrap(err, "write attachment file")
	}
	return written, nil
}

func (s *FileStore) Open(name string) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

func (s *FileStore) Remove(name string) error {
	return os.Remove(s.path(name))
}

func (s *FileStore) path(name string) string {
	// Base guards against traversal even though names are uuid-minted.
	return filepath.Join(s.dir, filepath.Base(name))
}
