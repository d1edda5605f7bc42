package evidence

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotFound        = errors.New("evidence not found")
	ErrTooLarge        = errors.New("evidence exceeds size limit")
	ErrUnsupportedType = errors.New("evidence is not a supported image type")
	ErrEmpty           = errors.New("evidence is empty")
)

// URLPrefix is where the HTTP layer serves stored evidence.
const URLPrefix = "/evidence/"

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

var keyPattern = regexp.MustCompile(`^[0-9a-f]{64}\.(jpg|png|gif|webp)$`)

// Object describes a stored image.
type Object struct {
	Key       string
	MediaType string
	Size      int64
}

// URL is the public path of the object.
func (o Object) URL() string {
	return URLPrefix + o.Key
}

// Store keeps evidence images on disk under their BLAKE2b-256 content hash,
// so uploading the same photo twice stores it once.
type Store struct {
	dir      string
	maxBytes int64
}

// NewStore creates dir if needed. maxBytes <= 0 disables the size check.
func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// MaxBytes returns the configured upload limit.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Put stores data and returns its descriptor.
func (s *Store) Put(ctx context.Context, data []byte) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if len(data) == 0 {
		return Object{}, ErrEmpty
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return Object{}, ErrTooLarge
	}
	mediaType := DetectMediaType(data)
	ext, ok := extensions[mediaType]
	if !ok {
		return Object{}, fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)
	}

	sum := blake2b.Sum256(data)
	obj := Object{Key: hex.EncodeToString(sum[:]) + ext, MediaType: mediaType, Size: int64(len(data))}
	path := filepath.Join(s.dir, obj.Key)
	if _, err := os.Stat(path); err == nil {
		return obj, nil
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Object{}, fmt.Errorf("write evidence: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("close evidence: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return Object{}, fmt.Errorf("store evidence: %w", err)
	}
	return obj, nil
}

// Open returns the stored bytes for key.
func (s *Store) Open(key string) (*os.File, Object, error) {
	if !keyPattern.MatchString(key) {
		return nil, Object{}, ErrNotFound
	}
	f, err := os.Open(filepath.Join(s.dir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Object{}, ErrNotFound
		}
		return nil, Object{}, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Object{}, err
	}
	return f, Object{Key: key, MediaType: mediaTypeFor(key), Size: info.Size()}, nil
}

// DetectMediaType sniffs the content type from the leading bytes.
func DetectMediaType(data []byte) string {
	mediaType := http.DetectContentType(data)
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return mediaType
}

func mediaTypeFor(key string) string {
	ext := filepath.Ext(key)
	for mt, e := range extensions {
		if e == ext {
			return mt
		}
	}
	return "application/octet-stream"
}
