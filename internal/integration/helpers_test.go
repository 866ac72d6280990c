//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nexusdrive/delivery-etl/internal/domain"
)

const (
	kafkaImage = "confluentinc/confluent-local:7.5.0"
	minioImage = "minio/minio:RELEASE.2024-10-13T13-34-11Z"

	minioUser     = "minioadmin"
	minioPassword = "minioadmin"
)

// Object keys used by the fixtures, matching the service defaults.
const (
	deliveryKey = "Pickup_and_delivery_data/delivery/delivery_{city}.csv"
	weatherKey  = "Pickup_and_delivery_data/weather/{city}_weather.csv"
	enrichedKey = "Pickup_and_delivery_data/Enriched/enriched_{city}.csv"
	externalKey = "amazon_delivery.csv"
	outputKey   = "Pickup_and_delivery_data/Final/aligned_deliveries.csv"
)

// fixtures maps object keys to CSV content for cities hz and sh.
var fixtures = map[string]string{
	"Pickup_and_delivery_data/delivery/delivery_hz.csv": `order_id,accept_time,delivery_time,accept_gps_lat,accept_gps_lng,delivery_gps_lat,delivery_gps_lng
H1,2025-01-01 08:30:00,2025-01-01 08:50:00,30.1,120.1,30.2,120.2
H2,2025-01-01 17:30:00,2025-01-01 18:00:00,30.1,120.1,30.2,120.2
`,
	"Pickup_and_delivery_data/weather/hz_weather.csv": `time,relative_humidity_2m (%),cloud_cover_low (%),cloud_cover (%),wind_speed_10m (km/h),precipitation (mm),is_day ()
2025-01-01 08:00:00,95,85,90,1,0,1
2025-01-01 17:00:00,80,40,95,15,4,1
`,
	"Pickup_and_delivery_data/delivery/delivery_sh.csv": `order_id,accept_time,delivery_time,lat,lng
S1,2025-01-01 12:00:00,2025-01-01 12:10:00,31.2,121.4
`,
	"Pickup_and_delivery_data/weather/sh_weather.csv": `timestamp,cloud_cover (%),is_day ()
2025-01-01 11:00:00,10,1
`,
	externalKey: `Order_ID,Store_Latitude,Store_Longitude,Drop_Latitude,Drop_Longitude,Order_Date,Order_Time,Weather,Traffic,Delivery_Time
X1,22.7,75.8,22.76,75.91,2025-02-01,10:00:00,Sunny,High ,45
`,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeFixtures lays the fixture objects out under dir.
func writeFixtures(t *testing.T, dir string) {
	t.Helper()
	for key, content := range fixtures {
		path := filepath.Join(dir, filepath.FromSlash(key))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := kafka.Run(ctx, kafkaImage, kafka.WithClusterID("delivery-etl-test"))
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start kafka container")

	brokers, err := ctr.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func startMinio(ctx context.Context, t *testing.T) string {
	t.Helper()
	ctr, err := testcontainers.Run(ctx, minioImage,
		testcontainers.WithExposedPorts("9000/tcp"),
		testcontainers.WithEnv(map[string]string{
			"MINIO_ROOT_USER":     minioUser,
			"MINIO_ROOT_PASSWORD": minioPassword,
		}),
		testcontainers.WithCmd("server", "/data"),
		testcontainers.WithWaitStrategy(
			wait.ForHTTP("/minio/health/live").WithPort("9000/tcp").WithStartupTimeout(time.Minute),
		),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start minio container")

	endpoint, err := ctr.PortEndpoint(ctx, "9000/tcp", "")
	require.NoError(t, err)
	return endpoint
}

// canonicalMessage is a message read back from the canonical topic.
type canonicalMessage struct {
	Record  domain.CanonicalDelivery
	Key     string
	Headers map[string]string
}

func readCanonical(ctx context.Context, t *testing.T, consumer *kafkago.Reader) canonicalMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from canonical topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var rec domain.CanonicalDelivery
	require.NoError(t, json.Unmarshal(msg.Value, &rec), "unmarshal canonical message")
	return canonicalMessage{Record: rec, Key: string(msg.Key), Headers: headers}
}
