package signature

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store saves custody signature images and returns a stored reference.
// Failures here are logged by callers and never fail the custody operation.
type Store interface {
	Save(ctx context.Context, custodyRecordID int64, image []byte) (string, error)
}

// FSStore writes signature images under a base directory.
type FSStore struct {
	dir string
}

// NewFSStore constructs a filesystem store rooted at dir.
func NewFSStore(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, errors.New("signature: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{dir: dir}, nil
}

// Save writes the image and returns its relative reference.
func (s *FSStore) Save(ctx context.Context, custodyRecordID int64, image []byte) (string, error) {
	_ = ctx
	if s == nil {
		return "", errors.New("signature: nil store")
	}
	if len(image) == 0 {
		return "", errors.New("signature: empty image")
	}
	name := fmt.Sprintf("custody-%d-%d.png", custodyRecordID, time.Now().UTC().UnixNano())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// DecodeImage decodes a base64 signature payload, accepting both raw base64
// and data URLs ("data:image/png;base64,...").
func DecodeImage(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, errors.New("signature: empty payload")
	}
	if idx := strings.Index(payload, "base64,"); idx >= 0 {
		payload = payload[idx+len("base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("signature: decode: %w", err)
	}
	return data, nil
}
