package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusdrive/delivery-etl/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	pickup := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	delivery := pickup.Add(45 * time.Minute)
	eta := 45.0
	traffic := "High"
	rec := domain.CanonicalDelivery{
		OrderID:      "X1",
		Date:         "2025-02-01",
		PickupTime:   &pickup,
		DeliveryTime: &delivery,
		Traffic:      &traffic,
		ETATarget:    &eta,
		Source:       "external",
	}

	msg, err := serializeToMessage("run-1", rec)
	require.NoError(t, err)

	assert.Equal(t, []byte("X1"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "source", msg.Headers[0].Key)
	assert.Equal(t, []byte("external"), msg.Headers[0].Value)
	assert.Equal(t, "run_id", msg.Headers[1].Key)
	assert.Equal(t, []byte("run-1"), msg.Headers[1].Value)

	var body map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &body))
	assert.Equal(t, "X1", body["order_id"])
	assert.Equal(t, "2025-02-01T10:45:00Z", body["delivery_time"])
	assert.InDelta(t, 45.0, body["eta_target"], 0)
	assert.Nil(t, body["weather"])
	assert.Nil(t, body["pickup_lat"])
}
