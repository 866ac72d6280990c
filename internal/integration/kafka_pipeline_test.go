//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdrive/delivery-etl/internal/adapter/kafka"
	"github.com/nexusdrive/delivery-etl/internal/adapter/objectstore"
	"github.com/nexusdrive/delivery-etl/internal/align"
	"github.com/nexusdrive/delivery-etl/internal/config"
	"github.com/nexusdrive/delivery-etl/internal/domain"
	"github.com/nexusdrive/delivery-etl/internal/observability"
	"github.com/nexusdrive/delivery-etl/internal/pipeline"
)

const testTopic = "test-canonical"

func testKeys() pipeline.Keys {
	return pipeline.Keys{
		Delivery: deliveryKey,
		Weather:  weatherKey,
		Enriched: enrichedKey,
		External: externalKey,
		Output:   outputKey,
	}
}

// TestKafkaWriter verifies that the writer publishes keyed records with
// run and source headers.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	writer := kafka.NewWriter(&config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testTopic,
		BatchSize:    1,
	}, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	weather, traffic, eta := "Fog", "High", 20.0
	records := []domain.CanonicalDelivery{
		{OrderID: "A1", Date: "2025-01-01", Weather: &weather, Traffic: &traffic, ETATarget: &eta, Source: "local"},
		{OrderID: "X1", Date: "2025-02-01", Source: "external"},
	}
	require.NoError(t, writer.LoadBatch(ctx, "run-1", records))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-writer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	first := readCanonical(ctx, t, consumer)
	assert.Equal(t, "A1", first.Key)
	assert.Equal(t, "run-1", first.Headers["run_id"])
	assert.Equal(t, "local", first.Headers["source"])
	require.NotNil(t, first.Record.Weather)
	assert.Equal(t, "Fog", *first.Record.Weather)

	second := readCanonical(ctx, t, consumer)
	assert.Equal(t, "X1", second.Key)
	assert.Equal(t, "external", second.Headers["source"])
	assert.Nil(t, second.Record.ETATarget)
}

// TestPipelineEndToEnd runs the pipeline over file fixtures and checks that
// every canonical record reaches Kafka in output order.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	dir := t.TempDir()
	writeFixtures(t, dir)

	writer := kafka.NewWriter(&config.Config{
		KafkaBrokers: []string{broker},
		KafkaTopic:   testTopic,
		BatchSize:    50,
	}, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(
		objectstore.NewFileStore(dir),
		pipeline.NewTransformer(align.DefaultSchemas(), 0, metrics, discardLogger()),
		[]pipeline.Loader{writer},
		[]string{"hz", "sh"}, testKeys(), discardLogger(), metrics,
		pipeline.WithRunIDs(func() string { return "run-e2e" }),
	)

	report, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, report.CanonicalRows)
	assert.Equal(t, 4, report.Loaded["kafka"])

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-e2e-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	var ids []string
	byID := map[string]domain.CanonicalDelivery{}
	for range report.CanonicalRows {
		m := readCanonical(ctx, t, consumer)
		assert.Equal(t, "run-e2e", m.Headers["run_id"])
		ids = append(ids, m.Key)
		byID[m.Key] = m.Record
	}
	assert.Equal(t, []string{"H1", "H2", "S1", "X1"}, ids)

	require.NotNil(t, byID["H1"].Weather)
	assert.Equal(t, "Fog", *byID["H1"].Weather)
	assert.Equal(t, "High", *byID["H1"].Traffic)
	assert.Equal(t, "Stormy", *byID["H2"].Weather)
	assert.Equal(t, "Jam", *byID["H2"].Traffic)
	assert.Equal(t, "Sunny", *byID["S1"].Weather)
	assert.Nil(t, byID["X1"].Weather)
	require.NotNil(t, byID["X1"].ETATarget)
	assert.InDelta(t, 45.0, *byID["X1"].ETATarget, 1e-9)
}
