package objstore

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrObjectNotFound is returned by DownloadFile and DeleteFile for missing keys.
var ErrObjectNotFound = errors.New("object not found")

// Storage holds raw uploaded document bytes.
type Storage interface {
	UploadFile(ctx context.Context, key string, r io.Reader, contentType string) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, key string) error
	Close() error
}

// DocumentKey builds "{prefix/}{orgID}/{docID}{ext}". ext includes its dot.
func DocumentKey(prefix, orgID, docID, ext string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	key := orgID + "/" + docID + ext
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// ReadAll downloads key fully into memory.
func ReadAll(ctx context.Context, s Storage, key string) ([]byte, error) {
	rc, err := s.DownloadFile(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func cleanKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("empty object key")
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", errors.New("invalid object key")
	}
	return cleaned, nil
}
