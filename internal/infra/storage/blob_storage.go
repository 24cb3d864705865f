// Package storage persists profile uploads to a gocloud blob bucket.
package storage

import (
	"context"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"marketplace/config"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/domain/service"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// BlobStorageParams holds dependencies for FileStorage, injected by Fx
type BlobStorageParams struct {
	fx.In

	Lc     fx.Lifecycle
	Config *config.Config
	Logger *slog.Logger
}

type blobStorage struct {
	bucket       *blob.Bucket
	maxSize      int64
	allowedTypes []string
	logger       *slog.Logger
}

// NewBlobStorage opens the configured bucket and closes it on shutdown.
func NewBlobStorage(params BlobStorageParams) (service.FileStorage, error) {
	cfg := params.Config.Storage
	if cfg == nil || cfg.BucketURL == "" {
		return nil, errors.New("storage bucket url is required")
	}

	bucket, err := blob.OpenBucket(context.Background(), cfg.BucketURL)
	if err != nil {
		return nil, errors.Wrapf(err, "open bucket %s", cfg.BucketURL)
	}

	params.Lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return bucket.Close()
		},
	})

	params.Logger.Info("File storage ready", slog.String("bucket", cfg.BucketURL))

	return newBlobStorage(bucket, cfg, params.Logger), nil
}

func newBlobStorage(bucket *blob.Bucket, cfg *config.StorageConfig, logger *slog.Logger) *blobStorage {
	return &blobStorage{
		bucket:       bucket,
		maxSize:      cfg.MaxUploadSize,
		allowedTypes: cfg.AllowedMimeTypes,
		logger:       logger,
	}
}

// Save checks type and size, then writes the upload under prefix with a
// random name. The returned reference is the object key.
func (s *blobStorage) Save(ctx context.Context, prefix string, upload service.Upload) (string, error) {
	mimeType := normalizeMIME(upload.MIMEType)
	if len(s.allowedTypes) > 0 && !slices.Contains(s.allowedTypes, mimeType) {
		return "", errors.Wrapf(domainerrors.ErrFileRejected.WithDetails(map[string]any{
			"file":      upload.Filename,
			"mime_type": mimeType,
		}), "mime type %s not allowed", mimeType)
	}
	if s.maxSize > 0 && upload.Size > s.maxSize {
		return "", errors.Wrapf(s.tooLarge(upload.Filename), "declared size %d", upload.Size)
	}

	key := path.Join(prefix, uuid.NewString()+strings.ToLower(filepath.Ext(upload.Filename)))

	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: mimeType})
	if err != nil {
		return "", errors.Wrap(domainerrors.ErrStorageFailed, err.Error())
	}

	src := upload.Content
	if s.maxSize > 0 {
		src = io.LimitReader(upload.Content, s.maxSize+1)
	}

	written, err := io.Copy(w, src)
	if err != nil {
		_ = w.Close()
		_ = s.bucket.Delete(ctx, key)

		return "", errors.Wrap(domainerrors.ErrStorageFailed, err.Error())
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(domainerrors.ErrStorageFailed, err.Error())
	}

	if s.maxSize > 0 && written > s.maxSize {
		_ = s.bucket.Delete(ctx, key)

		return "", errors.Wrapf(s.tooLarge(upload.Filename), "content exceeded %d bytes", s.maxSize)
	}

	s.logger.DebugContext(ctx, "Upload stored", slog.String("key", key), slog.Int64("size", written))

	return key, nil
}

// Delete removes the object behind ref.
func (s *blobStorage) Delete(ctx context.Context, ref string) error {
	if err := s.bucket.Delete(ctx, ref); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return errors.Wrap(domainerrors.ErrStorageFailed, err.Error())
	}

	return nil
}

func (s *blobStorage) tooLarge(filename string) error {
	return domainerrors.ErrFileRejected.WithDetails(map[string]any{
		"file":     filename,
		"max_size": s.maxSize,
	})
}

func normalizeMIME(v string) string {
	if i := strings.IndexByte(v, ';'); i >= 0 {
		v = v[:i]
	}

	return strings.ToLower(strings.TrimSpace(v))
}
