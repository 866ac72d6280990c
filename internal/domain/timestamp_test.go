package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeColumnName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"accept_time", "accept_time"},
		{"  Accept_Time ", "accept_time"},
		{"\ufeffOrder_ID", "order_id"},
		{"Relative_Humidity_2m (%)", "relative_humidity_2m (%)"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			once := NormalizeColumnName(tt.input)
			assert.Equal(t, tt.expected, once)
			assert.Equal(t, once, NormalizeColumnName(once))
		})
	}
}

func TestResolveColumn(t *testing.T) {
	t.Run("priority order wins over column order", func(t *testing.T) {
		col, err := ResolveColumn("weather", []string{"time", "timestamp", "rh"}, WeatherTimeCandidates)
		require.NoError(t, err)
		assert.Equal(t, "timestamp", col)
	})

	t.Run("matches after normalization", func(t *testing.T) {
		col, err := ResolveColumn("weather", []string{" Weather_Time "}, WeatherTimeCandidates)
		require.NoError(t, err)
		assert.Equal(t, "weather_time", col)
	})

	t.Run("no candidate", func(t *testing.T) {
		_, err := ResolveColumn("weather", []string{"rh", "wind"}, WeatherTimeCandidates)
		require.Error(t, err)

		var schemaErr *SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Equal(t, "weather", schemaErr.Table)
		assert.Equal(t, WeatherTimeCandidates, schemaErr.Candidates)
		assert.Contains(t, err.Error(), "time_weather")
	})
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 1, 1, 8, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    string
		expected time.Time
		ok       bool
	}{
		{"space separated", "2025-01-01 08:30:00", want, true},
		{"iso T", "2025-01-01T08:30:00", want, true},
		{"rfc3339 zulu", "2025-01-01T08:30:00Z", want, true},
		{"minutes only", "2025-01-01 08:30", want, true},
		{"fractional seconds", "2025-01-01 08:30:00.250", want.Add(250 * time.Millisecond), true},
		{"slash date", "2025/01/01 08:30:00", want, true},
		{"date only", "2025-01-01", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"padded", "  2025-01-01 08:30:00 ", want, true},
		{"empty", "", time.Time{}, false},
		{"garbage", "yesterday", time.Time{}, false},
		{"year-less", "01-01 08:30:00", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, tt.expected.Equal(got), "got %v", got)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"naive", "2025-01-01 08:30:00", "2025-01-01 08:30:00"},
		{"zulu", "2025-01-01T08:30:00Z", "2025-01-01 08:30:00"},
		{"positive offset", "2025-01-01T08:30:00+08:00", "2025-01-01 08:30:00+08:00"},
		{"negative offset", "2025-01-01 08:30:00-05:30", "2025-01-01 08:30:00-05:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := ParseTimestamp(tt.input)
			require.True(t, ok)

			out := FormatTimestamp(parsed)
			assert.Equal(t, tt.expected, out)

			back, ok := ParseTimestamp(out)
			require.True(t, ok)
			assert.True(t, parsed.Equal(back), "%s read back as %v", out, back)
		})
	}
}

func TestParseTimestamps_NullsInsteadOfErrors(t *testing.T) {
	got := ParseTimestamps([]string{"2025-01-01 08:30:00", "bad", ""})
	require.Len(t, got, 3)
	require.NotNil(t, got[0])
	assert.Nil(t, got[1])
	assert.Nil(t, got[2])
}

func TestSourceNotFoundError(t *testing.T) {
	inner := errors.New("no such key")
	err := error(&SourceNotFoundError{Source: "weather", Key: "hz_weather.csv", Err: inner})

	assert.Equal(t, "weather source not found: hz_weather.csv: no such key", err.Error())
	assert.ErrorIs(t, err, inner)
}
