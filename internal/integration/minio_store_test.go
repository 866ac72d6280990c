//go:build integration

package integration_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdrive/delivery-etl/internal/adapter/objectstore"
	"github.com/nexusdrive/delivery-etl/internal/align"
	"github.com/nexusdrive/delivery-etl/internal/config"
	"github.com/nexusdrive/delivery-etl/internal/domain"
	"github.com/nexusdrive/delivery-etl/internal/observability"
	"github.com/nexusdrive/delivery-etl/internal/pipeline"
)

func newMinioStore(ctx context.Context, t *testing.T) *objectstore.MinioStore {
	t.Helper()
	endpoint := startMinio(ctx, t)
	store, err := objectstore.NewMinioStore(&config.Config{
		MinioEndpoint:  endpoint,
		MinioAccessKey: minioUser,
		MinioSecretKey: minioPassword,
		MinioBucket:    "delivery-data",
	}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.EnsureBucket(ctx), "second call is a no-op")
	return store
}

func TestMinioStore(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store := newMinioStore(ctx, t)
	require.NoError(t, store.CheckReadiness(ctx))

	require.NoError(t, store.Put(ctx, "a/b.csv", []byte("x,y\n1,2\n")))
	got, err := store.Get(ctx, "a/b.csv")
	require.NoError(t, err)
	assert.Equal(t, "x,y\n1,2\n", string(got))

	_, err = store.Get(ctx, "missing.csv")
	var notFound *domain.SourceNotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
	assert.Equal(t, "missing.csv", notFound.Key)
}

// TestPipelineOverMinio runs the pipeline with the bucket as its object
// store and reads the canonical output back from it.
func TestPipelineOverMinio(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	store := newMinioStore(ctx, t)
	for key, content := range fixtures {
		require.NoError(t, store.Put(ctx, key, []byte(content)))
	}

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(
		store,
		pipeline.NewTransformer(align.DefaultSchemas(), 0, metrics, discardLogger()),
		nil, []string{"hz", "sh"}, testKeys(), discardLogger(), metrics,
	)
	report, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.CanonicalRows)
	require.NoError(t, p.CheckReadiness(ctx))

	enriched, err := store.Get(ctx, pipeline.ForCity(enrichedKey, "hz"))
	require.NoError(t, err)
	assert.Contains(t, string(enriched), "weather_label")

	out, err := store.Get(ctx, outputKey)
	require.NoError(t, err)
	records, err := align.ReadCSV(bytes.NewReader(out))
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "X1", records[3].OrderID)
}
