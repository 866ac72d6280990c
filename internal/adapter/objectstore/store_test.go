package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdrive/delivery-etl/internal/config"
	"github.com/nexusdrive/delivery-etl/internal/domain"
)

func TestFileStore_PutGet(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s := NewFileStore(root)

	key := "Pickup_and_delivery_data/Enriched/enriched_hz.csv"
	require.NoError(t, s.Put(ctx, key, []byte("order_id\nA1\n")))

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "order_id\nA1\n", string(data))
	assert.FileExists(t, filepath.Join(root, "Pickup_and_delivery_data", "Enriched", "enriched_hz.csv"))

	require.NoError(t, s.Put(ctx, key, []byte("order_id\nB1\n")))
	data, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "order_id\nB1\n", string(data))

	entries, err := os.ReadDir(filepath.Join(root, "Pickup_and_delivery_data", "Enriched"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestFileStore_Missing(t *testing.T) {
	s := NewFileStore(t.TempDir())
	_, err := s.Get(context.Background(), "delivery/delivery_hz.csv")

	var notFound *domain.SourceNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "delivery/delivery_hz.csv", notFound.Key)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileStore_RejectsEscapingKeys(t *testing.T) {
	s := NewFileStore(t.TempDir())
	for _, key := range []string{"../secrets.csv", "a/../../b.csv"} {
		_, err := s.Get(context.Background(), key)
		assert.ErrorContains(t, err, "escapes", key)
		assert.ErrorContains(t, s.Put(context.Background(), key, nil), "escapes", key)
	}
}

func TestFileStore_CheckReadiness(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, NewFileStore(dir).CheckReadiness(context.Background()))
	assert.Error(t, NewFileStore(filepath.Join(dir, "missing")).CheckReadiness(context.Background()))
}

func TestNewMinioStore(t *testing.T) {
	s, err := NewMinioStore(&config.Config{
		MinioEndpoint:  "localhost:9000",
		MinioAccessKey: "access",
		MinioSecretKey: "secret",
		MinioBucket:    "deliveries",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "deliveries", s.bucket)

	_, err = NewMinioStore(&config.Config{MinioEndpoint: "http://bad endpoint"}, nil)
	assert.Error(t, err)
}
