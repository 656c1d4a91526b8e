// Package media stores product and proposal photos in a blob bucket addressed by URL.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/MarcoPoloResearchLab/plate400/internal/apperr"
	"github.com/MarcoPoloResearchLab/plate400/internal/ids"
	"go.uber.org/zap"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

const (
	opOpen   = "media.open"
	opSave   = "media.save"
	opExists = "media.exists"
	opDelete = "media.delete"
)

var allowedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// StoreConfig describes the bucket backing the store.
type StoreConfig struct {
	BucketURL  string
	IDProvider ids.Provider
	Logger     *zap.Logger
}

// Store writes photos under opaque keys. Callers only ever check whether a key is set.
type Store struct {
	bucket     *blob.Bucket
	idProvider ids.Provider
	logger     *zap.Logger
}

// OpenStore opens the bucket named by cfg.BucketURL (file:// or mem://).
func OpenStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if strings.TrimSpace(cfg.BucketURL) == "" {
		return nil, apperr.Internal(opOpen, "missing_bucket_url", errors.New("bucket url is required"))
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = ids.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bucket, err := blob.OpenBucket(ctx, cfg.BucketURL)
	if err != nil {
		return nil, fmt.Errorf("open media bucket: %w", err)
	}
	return &Store{bucket: bucket, idProvider: idProvider, logger: logger}, nil
}

// Save copies reader into the bucket under prefix and returns the new key.
func (s *Store) Save(ctx context.Context, prefix, filename string, reader io.Reader) (string, error) {
	extension := strings.ToLower(path.Ext(filename))
	contentType, ok := allowedExtensions[extension]
	if !ok {
		return "", apperr.Validation(opSave, "unsupported_extension", "photo must be a jpg, png or webp image", nil)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return "", apperr.Internal(opSave, "id_generation_failed", err)
	}
	key := path.Join(strings.Trim(prefix, "/"), id+extension)

	writer, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		s.logError(opSave, "writer_open_failed", err, zap.String("key", key))
		return "", apperr.Internal(opSave, "writer_open_failed", err)
	}
	if _, err := io.Copy(writer, reader); err != nil {
		_ = writer.Close()
		s.logError(opSave, "copy_failed", err, zap.String("key", key))
		return "", apperr.Internal(opSave, "copy_failed", err)
	}
	if err := writer.Close(); err != nil {
		s.logError(opSave, "writer_close_failed", err, zap.String("key", key))
		return "", apperr.Internal(opSave, "writer_close_failed", err)
	}
	return key, nil
}

// Exists reports whether key is present in the bucket.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return false, nil
	}
	exists, err := s.bucket.Exists(ctx, key)
	if err != nil {
		s.logError(opExists, "lookup_failed", err, zap.String("key", key))
		return false, apperr.Internal(opExists, "lookup_failed", err)
	}
	return exists, nil
}

// Open returns a reader for key; a missing key is reported as not found.
func (s *Store) Open(ctx context.Context, key string) (*blob.Reader, error) {
	reader, err := s.bucket.NewReader(ctx, key, nil)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, apperr.NotFound(opOpen, "photo_not_found", "photo not found", err)
	}
	if err != nil {
		s.logError(opOpen, "reader_open_failed", err, zap.String("key", key))
		return nil, apperr.Internal(opOpen, "reader_open_failed", err)
	}
	return reader, nil
}

// Delete removes key from the bucket. Empty and missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	err := s.bucket.Delete(ctx, key)
	if err == nil || gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	s.logError(opDelete, "delete_failed", err, zap.String("key", key))
	return apperr.Internal(opDelete, "delete_failed", err)
}

// Close releases the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
		zap.Error(err),
	}
	s.logger.Error("media store error", append(attrs, fields...)...)
}
