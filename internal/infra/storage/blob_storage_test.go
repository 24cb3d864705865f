package storage

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"marketplace/config"
	domainerrors "marketplace/internal/domain/errors"
	"marketplace/internal/domain/service"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
)

func newTestStorage(t *testing.T, maxSize int64) *blobStorage {
	t.Helper()

	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { _ = bucket.Close() })

	return newBlobStorage(bucket, &config.StorageConfig{
		MaxUploadSize:    maxSize,
		AllowedMimeTypes: []string{"image/png", "application/pdf"},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBlobStorage_Save(t *testing.T) {
	s := newTestStorage(t, 1024)
	ctx := context.Background()

	key, err := s.Save(ctx, "profiles/7/visiting_card", service.Upload{
		Filename: "Card.PNG",
		MIMEType: "image/png",
		Size:     5,
		Content:  strings.NewReader("hello"),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "profiles/7/visiting_card/"))
	assert.True(t, strings.HasSuffix(key, ".png"))

	data, err := s.bucket.ReadAll(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestBlobStorage_RejectsMIME(t *testing.T) {
	s := newTestStorage(t, 1024)

	_, err := s.Save(context.Background(), "p", service.Upload{
		Filename: "x.exe",
		MIMEType: "application/octet-stream",
		Content:  strings.NewReader("MZ"),
	})
	assert.True(t, errors.Is(err, domainerrors.ErrFileRejected))
}

func TestBlobStorage_AcceptsMIMEParameters(t *testing.T) {
	s := newTestStorage(t, 1024)

	_, err := s.Save(context.Background(), "p", service.Upload{
		Filename: "doc.pdf",
		MIMEType: "application/PDF; charset=binary",
		Content:  strings.NewReader("%PDF"),
	})
	assert.NoError(t, err)
}

func TestBlobStorage_RejectsOversize(t *testing.T) {
	s := newTestStorage(t, 4)
	ctx := context.Background()

	_, err := s.Save(ctx, "p", service.Upload{
		Filename: "a.png",
		MIMEType: "image/png",
		Size:     10,
		Content:  strings.NewReader("0123456789"),
	})
	assert.True(t, errors.Is(err, domainerrors.ErrFileRejected))

	// Declared size lies; the content itself is still capped.
	_, err = s.Save(ctx, "q", service.Upload{
		Filename: "a.png",
		MIMEType: "image/png",
		Size:     1,
		Content:  strings.NewReader("0123456789"),
	})
	assert.True(t, errors.Is(err, domainerrors.ErrFileRejected))

	iter := s.bucket.List(nil)
	_, err = iter.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestBlobStorage_Delete(t *testing.T) {
	s := newTestStorage(t, 1024)
	ctx := context.Background()

	key, err := s.Save(ctx, "profiles/7/profile_image", service.Upload{
		Filename: "me.png", MIMEType: "image/png", Size: 2, Content: strings.NewReader("hi"),
	})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, key))
	exists, err := s.bucket.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, s.Delete(ctx, key), "deleting a missing object is not an error")
}
