package xiaomi_test

import (
	"testing"

	"github.com/srg/bleproxy/internal/testutils"
	"github.com/srg/bleproxy/internal/xiaomi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, frame []byte) (xiaomi.Reading, error) {
	t.Helper()
	h, err := xiaomi.ParseHeader(frame)
	require.NoError(t, err)
	return xiaomi.ParseMessage(frame, h)
}

func TestParseMessageTemperatureHumidity(t *testing.T) {
	r, err := decode(t, testutils.NewMiBeaconBuilder().WithTemperatureHumidity(21.5, 48.2).Build())
	require.NoError(t, err)

	assert.Equal(t, "LYWSD03MMC", r.Model)
	require.NotNil(t, r.Temperature)
	require.NotNil(t, r.Humidity)
	assert.InDelta(t, 21.5, *r.Temperature, 0.001)
	assert.InDelta(t, 48.2, *r.Humidity, 0.001)
	assert.Nil(t, r.BatteryLevel)
}

func TestParseMessageNegativeTemperature(t *testing.T) {
	r, err := decode(t, testutils.NewMiBeaconBuilder().WithTemperature(-5.3).Build())
	require.NoError(t, err)
	require.NotNil(t, r.Temperature)
	assert.InDelta(t, -5.3, *r.Temperature, 0.001)
}

func TestParseMessageMultipleObjects(t *testing.T) {
	frame := testutils.NewMiBeaconBuilder().
		WithProduct(0x0098).
		WithCapability().
		WithObject(0x09, 0x5E, 0x01).
		WithObject(0x08, 42).
		WithObject(0x07, 0x96, 0x00, 0x00).
		WithBattery(77).
		Build()

	r, err := decode(t, frame)
	require.NoError(t, err)

	assert.Equal(t, "HHCCJCY01", r.Model)
	assert.Equal(t, 350.0, *r.Conductivity)
	assert.Equal(t, 42.0, *r.Moisture)
	assert.Equal(t, 150.0, *r.Illuminance)
	assert.True(t, *r.IsLight)
	assert.Equal(t, 77.0, *r.BatteryLevel)
}

func TestParseMessageMotionWithIlluminance(t *testing.T) {
	r, err := decode(t, testutils.NewMiBeaconBuilder().WithProduct(0x07F6).WithObject(0x0F, 0x05, 0x00, 0x00).Build())
	require.NoError(t, err)

	assert.True(t, *r.HasMotion)
	assert.False(t, *r.IsLight)
	assert.Equal(t, 5.0, *r.Illuminance)
}

func TestParseMessageFlags(t *testing.T) {
	r, err := decode(t, testutils.NewMiBeaconBuilder().
		WithObject(0x12, 1).
		WithObject(0x18, 0).
		WithObject(0x13, 60).
		Build())
	require.NoError(t, err)

	assert.True(t, *r.IsActive)
	assert.False(t, *r.IsLight)
	assert.Equal(t, 60.0, *r.Tablet)
}

func TestParseMessageTrailingGarbageIgnored(t *testing.T) {
	frame := testutils.NewMiBeaconBuilder().WithBattery(50).Build()
	frame = append(frame, 0x04, 0x77, 0x02, 0x00, 0x00)

	r, err := decode(t, frame)
	require.NoError(t, err)
	assert.Equal(t, 50.0, *r.BatteryLevel)
	assert.Nil(t, r.Temperature)
}

func TestParseMessageErrors(t *testing.T) {
	t.Run("encrypted", func(t *testing.T) {
		_, err := decode(t, testutils.NewMiBeaconBuilder().Encrypted().WithBattery(50).Build())
		assert.ErrorIs(t, err, xiaomi.ErrEncrypted)
	})

	t.Run("no object list", func(t *testing.T) {
		_, err := decode(t, testutils.NewMiBeaconBuilder().Build())
		assert.ErrorIs(t, err, xiaomi.ErrTooShort)
	})

	t.Run("bad fixed byte", func(t *testing.T) {
		frame := testutils.NewMiBeaconBuilder().Build()
		frame = append(frame, 0x0A, 0x77, 0x01, 0x50)
		_, err := decode(t, frame)
		assert.ErrorIs(t, err, xiaomi.ErrMalformed)
	})

	t.Run("oversized object", func(t *testing.T) {
		_, err := decode(t, testutils.NewMiBeaconBuilder().WithObject(0x0A, 1, 2, 3, 4, 5).Build())
		assert.ErrorIs(t, err, xiaomi.ErrMalformed)
	})

	t.Run("only unknown objects", func(t *testing.T) {
		_, err := decode(t, testutils.NewMiBeaconBuilder().WithObject(0x55, 1).Build())
		assert.ErrorIs(t, err, xiaomi.ErrMalformed)
	})
}

func TestReadingFields(t *testing.T) {
	r, err := decode(t, testutils.NewMiBeaconBuilder().
		WithObject(0x03, 1).
		WithBattery(64).
		WithTemperatureHumidity(19.0, 55.0).
		Build())
	require.NoError(t, err)

	assert.Equal(t, []xiaomi.Field{
		{Name: "temperature", Value: 19.0},
		{Name: "humidity", Value: 55.0},
		{Name: "battery_level", Value: 64},
		{Name: "has_motion", Value: 1},
	}, r.Fields())
	assert.False(t, r.Empty())
	assert.True(t, (&xiaomi.Reading{}).Empty())
}
