package labelsync_test

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
	"github.com/tendant/qc-labelsync/pkg/labelsync/objectkey"
	"github.com/tendant/qc-labelsync/pkg/labelsync/storage/memory"
)

func fixedPrefix(prefix string) labelsync.ObjectStoreOption {
	return labelsync.WithKeyGenerator(&objectkey.CatalogGenerator{
		PrefixFunc: func() string { return prefix },
	})
}

func TestObjectStore_Put(t *testing.T) {
	ctx := context.Background()
	blob := memory.New(memory.WithBucket("qc-images"))
	store := labelsync.NewObjectStore(blob, fixedPrefix("abcd1234"))

	payload := bytes.Repeat([]byte{0xff, 0xd8}, 512)
	sum := md5.Sum(payload)

	key, meta, err := store.Put(ctx, labelsync.PutRequest{
		Data:        bytes.NewReader(payload),
		CompanyName: "Acme Corp!",
		ProductName: "Widget",
		StepName:    "Widget",
		FileName:    "a.jpg",
	})
	require.NoError(t, err)

	assert.Equal(t, "acme_corp/widget/widget/abcd1234_a.jpg", key)
	assert.Equal(t, labelsync.ImageMetadata{
		ObjectKey: key,
		Bucket:    "qc-images",
		SizeBytes: int64(len(payload)),
		MimeType:  "image/jpeg",
		Checksum:  hex.EncodeToString(sum[:]),
		Provider:  "memory",
	}, meta)

	stored, err := blob.GetObjectMeta(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), stored.Size)
	assert.Equal(t, "image/jpeg", stored.ContentType)

	require.NoError(t, store.VerifyChecksum(ctx, key, meta.Checksum))
}

func TestObjectStore_PutEmptyFilenameAndMime(t *testing.T) {
	store := labelsync.NewObjectStore(memory.New(), fixedPrefix("0badf00d"))

	key, meta, err := store.Put(context.Background(), labelsync.PutRequest{
		Data:        strings.NewReader("png"),
		CompanyName: "acme",
		ProductName: "widget",
		StepName:    "inspection",
		MimeType:    "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, "acme/widget/inspection/0badf00d.jpg", key)
	assert.Equal(t, "image/png", meta.MimeType)
}

func TestObjectStore_PutRejectsEmptyTokens(t *testing.T) {
	store := labelsync.NewObjectStore(memory.New())

	_, _, err := store.Put(context.Background(), labelsync.PutRequest{
		Data:        strings.NewReader("x"),
		CompanyName: "!!!",
		ProductName: "widget",
		StepName:    "widget",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, labelsync.ErrInvalidState))

	_, _, err = store.Put(context.Background(), labelsync.PutRequest{
		CompanyName: "acme",
		ProductName: "widget",
		StepName:    "widget",
	})
	assert.True(t, errors.Is(err, labelsync.ErrInvalidState))
}

func TestObjectStore_PresignedURL(t *testing.T) {
	ctx := context.Background()
	store := labelsync.NewObjectStore(memory.New(memory.WithBucket("qc-images")), fixedPrefix("abcd1234"))

	key, _, err := store.Put(ctx, labelsync.PutRequest{
		Data:        strings.NewReader("x"),
		CompanyName: "acme",
		ProductName: "widget",
		StepName:    "widget",
		FileName:    "a.jpg",
	})
	require.NoError(t, err)

	u, err := store.PresignedURL(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Contains(t, u, "qc-images/acme/widget/widget/abcd1234_a.jpg")

	_, err = store.PresignedURL(ctx, "acme/widget/widget/missing.jpg", time.Hour)
	assert.True(t, errors.Is(err, labelsync.ErrNotFound))

	_, err = store.PresignedURL(ctx, key, 0)
	assert.True(t, errors.Is(err, labelsync.ErrInvalidState))
}

func TestObjectStore_DeleteListStats(t *testing.T) {
	ctx := context.Background()
	store := labelsync.NewObjectStore(memory.New(memory.WithBucket("qc-images")))

	var keys []string
	for _, product := range []string{"widget", "widget", "gadget"} {
		key, _, err := store.Put(ctx, labelsync.PutRequest{
			Data:        bytes.NewReader(make([]byte, 1024*1024)),
			CompanyName: "acme",
			ProductName: product,
			StepName:    product,
			FileName:    "img.jpg",
		})
		require.NoError(t, err)
		keys = append(keys, key)
	}

	widgets, err := store.List(ctx, objectkey.ProductPrefix("acme", "widget"))
	require.NoError(t, err)
	assert.Len(t, widgets, 2)
	for _, info := range widgets {
		assert.True(t, strings.HasPrefix(info.Key, "acme/widget/"))
		assert.Equal(t, int64(1024*1024), info.Size)
	}

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, labelsync.StorageStats{
		Bucket:      "qc-images",
		ObjectCount: 3,
		TotalBytes:  3 * 1024 * 1024,
		TotalMB:     3,
	}, stats)

	require.NoError(t, store.Delete(ctx, keys[0]))
	err = store.Delete(ctx, keys[0])
	assert.True(t, errors.Is(err, labelsync.ErrNotFound))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

type tamperedBlob struct {
	*memory.Backend
}

func (b tamperedBlob) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("tampered")), nil
}

func TestObjectStore_VerifyChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	store := labelsync.NewObjectStore(backend)

	key, meta, err := store.Put(ctx, labelsync.PutRequest{
		Data:        strings.NewReader("original"),
		CompanyName: "acme",
		ProductName: "widget",
		StepName:    "widget",
	})
	require.NoError(t, err)

	tampered := labelsync.NewObjectStore(tamperedBlob{backend})
	err = tampered.VerifyChecksum(ctx, key, meta.Checksum)
	assert.True(t, errors.Is(err, labelsync.ErrChecksumMismatch))
}
