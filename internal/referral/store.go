package referral

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrUnsupportedType = errors.New("referral must be a JPEG, PNG or PDF")
	ErrTooLarge        = errors.New("referral document is too large")
)

var extByType = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
}

// Store persists uploaded referral documents and hands back a durable URL.
// The booking flow treats that URL as an opaque string.
type Store interface {
	Save(ctx context.Context, contentType string, r io.Reader) (string, error)
}

// DiskStore writes referral documents to a local directory served under
// BaseURL. Swapping in object storage later only means another Store.
type DiskStore struct {
	dir      string
	baseURL  string
	maxBytes int64
	log      zerolog.Logger
}

func NewDiskStore(dir, baseURL string, maxBytes int64, log zerolog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create referral dir: %w", err)
	}

	return &DiskStore{
		dir:      dir,
		baseURL:  baseURL,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "referral").Logger(),
	}, nil
}

func (s *DiskStore) Save(ctx context.Context, contentType string, r io.Reader) (string, error) {
	ext, ok := extByType[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create referral file: %w", err)
	}
	defer f.Close()

	// Read one byte past the limit so an exactly-at-limit file still passes.
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write referral file: %w", err)
	}
	if n > s.maxBytes {
		_ = os.Remove(path)
		return "", ErrTooLarge
	}

	s.log.Info().Str("file", name).Int64("bytes", n).Msg("referral stored")
	return s.baseURL + "/" + name, nil
}
