// Package media stores uploaded files in fs-jetstream object buckets.
//
// Objects are addressed by a reference of the form "bucket/uuid/filename",
// which is what entities persist in their preview, image, receipt and avatar
// columns.
package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	fsjetstream "github.com/go-monolith/mono/plugin/fs-jetstream"
	"github.com/google/uuid"
)

// Bucket names.
const (
	PreviewsBucket = "previews"
	ImagesBucket   = "images"
	ReceiptsBucket = "receipts"
	AvatarsBucket  = "avatars"
	UploadsBucket  = "uploads"
)

// DefaultMaxUpload is the size limit of the upload demo.
const DefaultMaxUpload = 1 << 20

const defaultContentType = "application/octet-stream"

// BucketNames lists every bucket the service expects.
var BucketNames = []string{PreviewsBucket, ImagesBucket, ReceiptsBucket, AvatarsBucket, UploadsBucket}

// BucketConfigs returns the fs-jetstream configuration of every bucket.
// Memory storage is used by tests.
func BucketConfigs(maxBytes int64, memory bool) []fsjetstream.BucketConfig {
	configs := make([]fsjetstream.BucketConfig, 0, len(BucketNames))
	for _, name := range BucketNames {
		cfg := fsjetstream.BucketConfig{
			Name:        name,
			Description: fmt.Sprintf("Shop %s", name),
			MaxBytes:    maxBytes,
			Storage:     fsjetstream.FileStorage,
			Compression: true,
		}
		if memory {
			cfg.Storage = fsjetstream.MemoryStorage
			cfg.Compression = false
		}
		configs = append(configs, cfg)
	}
	return configs
}

// Object describes a stored file.
type Object struct {
	Ref         string    `json:"ref"`
	Bucket      string    `json:"bucket"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	Digest      string    `json:"digest"`
	CreatedAt   time.Time `json:"created_at"`
}

// Service provides media storage over a set of named buckets.
type Service struct {
	buckets   map[string]fsjetstream.FileStoragePort
	maxUpload int64
}

// NewService creates a media service. maxUpload bounds Upload; zero means
// DefaultMaxUpload.
func NewService(buckets map[string]fsjetstream.FileStoragePort, maxUpload int64) *Service {
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &Service{buckets: buckets, maxUpload: maxUpload}
}

// MaxUpload returns the upload size limit in bytes.
func (s *Service) MaxUpload() int64 {
	return s.maxUpload
}

func (s *Service) bucket(name string) (fsjetstream.FileStoragePort, error) {
	b, ok := s.buckets[name]
	if !ok || b == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBucket, name)
	}
	return b, nil
}

// Store saves data under a fresh id in bucket and returns its reference.
func (s *Service) Store(ctx context.Context, bucket, filename, contentType string, data []byte) (string, error) {
	obj, err := s.put(ctx, bucket, filename, contentType, data)
	if err != nil {
		return "", err
	}
	return obj.Ref, nil
}

// Upload saves a demo upload, rejecting files above the size limit.
func (s *Service) Upload(ctx context.Context, filename, contentType string, data []byte) (*Object, error) {
	if int64(len(data)) > s.maxUpload {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(data), s.maxUpload)
	}
	return s.put(ctx, UploadsBucket, filename, contentType, data)
}

func (s *Service) put(ctx context.Context, bucket, filename, contentType string, data []byte) (*Object, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	id := uuid.New().String()
	name := sanitizeFilename(filename)
	key := id + "/" + name

	info, err := b.Put(ctx, key, data,
		fsjetstream.WithDescription(fmt.Sprintf("File: %s", name)),
		fsjetstream.WithHeaders(map[string]string{
			"Content-Type":  contentType,
			"Original-Name": filename,
			"File-ID":       id,
			"Uploaded-At":   time.Now().Format(time.RFC3339),
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", bucket, err)
	}

	return &Object{
		Ref:         bucket + "/" + key,
		Bucket:      bucket,
		ID:          id,
		Name:        name,
		Size:        int64(info.Size),
		ContentType: contentType,
		Digest:      info.Digest,
		CreatedAt:   info.ModTime,
	}, nil
}

// Open returns the content and metadata of the object at ref.
func (s *Service) Open(ctx context.Context, ref string) ([]byte, *Object, error) {
	obj, b, err := s.lookup(ref)
	if err != nil {
		return nil, nil, err
	}
	data, err := b.Get(obj.ID + "/" + obj.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, obj, nil
}

// Delete removes the object at ref.
func (s *Service) Delete(ctx context.Context, ref string) error {
	obj, b, err := s.lookup(ref)
	if err != nil {
		return err
	}
	if err := b.Delete(obj.ID + "/" + obj.Name); err != nil {
		return fmt.Errorf("failed to delete %s: %w", ref, err)
	}
	return nil
}

// List returns every object in bucket.
func (s *Service) List(ctx context.Context, bucket string) ([]Object, error) {
	b, err := s.bucket(bucket)
	if err != nil {
		return nil, err
	}
	infos, err := b.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}

	objects := make([]Object, 0, len(infos))
	for i := range infos {
		id, name, ok := strings.Cut(infos[i].Name, "/")
		if !ok {
			continue
		}
		objects = append(objects, objectFromInfo(bucket, id, name, &infos[i]))
	}
	return objects, nil
}

func (s *Service) lookup(ref string) (*Object, fsjetstream.FileStoragePort, error) {
	bucket, id, name, err := ParseRef(ref)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.bucket(bucket)
	if err != nil {
		return nil, nil, err
	}

	infos, err := b.List(fsjetstream.WithPrefix(id + "/"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s: %w", bucket, err)
	}
	for i := range infos {
		if infos[i].Name == id+"/"+name {
			obj := objectFromInfo(bucket, id, name, &infos[i])
			return &obj, b, nil
		}
	}
	return nil, nil, ErrObjectNotFound
}

func objectFromInfo(bucket, id, name string, info *fsjetstream.ObjectInfo) Object {
	return Object{
		Ref:         bucket + "/" + id + "/" + name,
		Bucket:      bucket,
		ID:          id,
		Name:        name,
		Size:        int64(info.Size),
		ContentType: contentType(info.Headers),
		Digest:      info.Digest,
		CreatedAt:   info.ModTime,
	}
}

// ParseRef splits "bucket/uuid/filename" into its parts.
func ParseRef(ref string) (bucket, id, name string, err error) {
	parts := strings.SplitN(ref, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	if _, err := uuid.Parse(parts[1]); err != nil {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return parts[0], parts[1], parts[2], nil
}

// sanitizeFilename removes path separators and dangerous characters from filename.
func sanitizeFilename(filename string) string {
	clean := filepath.Base(filepath.Clean(filename))
	clean = strings.ReplaceAll(clean, "/", "_")
	clean = strings.ReplaceAll(clean, "\\", "_")
	if clean == "." || clean == ".." || clean == "" {
		return "unnamed"
	}
	return clean
}

func contentType(headers map[string]string) string {
	if ct, ok := headers["Content-Type"]; ok && ct != "" {
		return ct
	}
	return defaultContentType
}
