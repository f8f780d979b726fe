package media

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const framesSubdir = "frames"

// DirFrameStore writes representative frames under <root>/frames and
// returns the path relative to root, which is also the path served by
// the static file route.
type DirFrameStore struct {
	root string
}

// NewDirFrameStore creates the frames directory if needed.
func NewDirFrameStore(root string) (*DirFrameStore, error) {
	if err := os.MkdirAll(filepath.Join(root, framesSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create frames directory: %w", err)
	}
	return &DirFrameStore{root: root}, nil
}

// Save implements FrameStore.
func (s *DirFrameStore) Save(ctx context.Context, frame Frame) (string, error) {
	if len(frame.Data) == 0 {
		return "", ErrEmptyInput
	}
	name := fmt.Sprintf("frame_%s_%s.jpg", time.Now().UTC().Format("20060102_150405"), uuid.New().String()[:8])
	if err := os.WriteFile(filepath.Join(s.root, framesSubdir, name), frame.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write frame: %w", err)
	}
	return path.Join(framesSubdir, name), nil
}
