package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rebolloluis/family-tree/internal/config"
	"google.golang.org/api/option"
)

var (
	ErrFileTooLarge    = errors.New("file exceeds the upload limit")
	ErrUnsupportedType = errors.New("only jpeg, png, gif and webp images are accepted")
)

var imageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// PhotoStore persists uploaded images and hands back their public URL.
type PhotoStore interface {
	Save(ctx context.Context, key, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
	// URL is the public address Save returns for key.
	URL(key string) string
}

// UploadService validates member photos and avatars before storing them.
type UploadService struct {
	store    PhotoStore
	maxBytes int64
}

func NewUploadService(store PhotoStore, maxBytes int64) *UploadService {
	return &UploadService{store: store, maxBytes: maxBytes}
}

// Upload stores r under scope with a fresh name and returns its URL.
// scope is a family id for member photos or a user id for avatars.
func (s *UploadService) Upload(ctx context.Context, scope, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := imageExtensions[ext]; !ok {
		return "", ErrUnsupportedType
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", ErrFileTooLarge
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrUnsupportedType
	}

	key := path.Join(sanitizeScope(scope), uuid.NewString()+ext)
	return s.store.Save(ctx, key, contentType, bytes.NewReader(data))
}

func (s *UploadService) Delete(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	return s.store.Delete(ctx, url)
}

// Owns reports whether url names a file this service stored under scope.
func (s *UploadService) Owns(scope, url string) bool {
	name, ok := strings.CutPrefix(url, s.store.URL(sanitizeScope(scope)+"/"))
	return ok && name != "" && !strings.ContainsAny(name, "/\\") && !strings.Contains(name, "..")
}

func sanitizeScope(scope string) string {
	scope = strings.Trim(strings.ReplaceAll(scope, "..", ""), "/ ")
	if scope == "" {
		return "misc"
	}
	return strings.ReplaceAll(scope, "/", "_")
}

// NewPhotoStore builds the store selected by cfg.Driver.
func NewPhotoStore(ctx context.Context, cfg config.UploadConfig) (PhotoStore, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalPhotoStore(cfg.Dir, cfg.PublicPath)
	case "gcs":
		return NewGCSPhotoStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported upload driver: %s", cfg.Driver)
	}
}

// LocalPhotoStore writes files below dir and serves them under publicPath.
type LocalPhotoStore struct {
	dir        string
	publicPath string
}

func NewLocalPhotoStore(dir, publicPath string) (*LocalPhotoStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &LocalPhotoStore{dir: dir, publicPath: "/" + strings.Trim(publicPath, "/")}, nil
}

func (s *LocalPhotoStore) Save(_ context.Context, key, _ string, r io.Reader) (string, error) {
	target := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, r); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return s.URL(key), nil
}

func (s *LocalPhotoStore) URL(key string) string {
	return s.publicPath + "/" + key
}

// Delete removes the file behind a URL produced by Save. URLs from other
// stores are ignored.
func (s *LocalPhotoStore) Delete(_ context.Context, url string) error {
	key, ok := strings.CutPrefix(url, s.publicPath+"/")
	if !ok || strings.Contains(key, "..") {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// GCSPhotoStore keeps photos in a Google Cloud Storage bucket.
type GCSPhotoStore struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewGCSPhotoStore(ctx context.Context, cfg config.GCSConfig) (*GCSPhotoStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs upload driver requires a bucket")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	base := cfg.PublicBaseURL
	if base == "" {
		base = "https://storage.googleapis.com/" + cfg.Bucket
	}
	return &GCSPhotoStore{client: client, bucket: cfg.Bucket, baseURL: strings.TrimRight(base, "/")}, nil
}

func (s *GCSPhotoStore) Save(ctx context.Context, key, contentType string, r io.Reader) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=86400"
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to copy upload to gs://%s/%s: %w", s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return s.URL(key), nil
}

func (s *GCSPhotoStore) URL(key string) string {
	return s.baseURL + "/" + key
}

func (s *GCSPhotoStore) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return nil
	}
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (s *GCSPhotoStore) Close() error {
	return s.client.Close()
}
