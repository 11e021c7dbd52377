package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaches_AboveIsStrict(t *testing.T) {
	rule := AlertRule{Condition: ConditionAbove, Threshold: ScalarThreshold(40)}

	assert.False(t, rule.Breaches(40.0), "boundary value must not fire")
	assert.False(t, rule.Breaches(39.9))
	assert.True(t, rule.Breaches(40.0001))
}

func TestBreaches_BelowIsStrict(t *testing.T) {
	rule := AlertRule{Condition: ConditionBelow, Threshold: ScalarThreshold(18)}

	assert.False(t, rule.Breaches(18.0), "boundary value must not fire")
	assert.False(t, rule.Breaches(18.1))
	assert.True(t, rule.Breaches(17.9999))
}

func TestBreaches_OutsideRange(t *testing.T) {
	rule := AlertRule{Condition: ConditionOutsideRange, Threshold: RangeThreshold(20, 40)}

	assert.False(t, rule.Breaches(20.0))
	assert.False(t, rule.Breaches(40.0))
	assert.False(t, rule.Breaches(30.0))
	assert.True(t, rule.Breaches(19.9))
	assert.True(t, rule.Breaches(40.1))
}

func TestBreaches_MalformedThresholdNeverFires(t *testing.T) {
	// a range rule missing its bounds can only happen on rows written
	// before validation; it must stay silent rather than fire
	rule := AlertRule{Condition: ConditionOutsideRange, Threshold: ScalarThreshold(40)}
	assert.False(t, rule.Breaches(100))
}

func TestThresholdValidate(t *testing.T) {
	assert.NoError(t, ScalarThreshold(40).Validate(ConditionAbove))
	assert.NoError(t, ScalarThreshold(18).Validate(ConditionBelow))
	assert.NoError(t, RangeThreshold(20, 40).Validate(ConditionOutsideRange))

	assert.Error(t, RangeThreshold(20, 40).Validate(ConditionAbove))
	assert.Error(t, ScalarThreshold(40).Validate(ConditionOutsideRange))
	assert.Error(t, Threshold{}.Validate(ConditionBelow))
	assert.Error(t, ScalarThreshold(1).Validate(Condition("between")))
}

func TestThresholdJSON_ScalarIsBareNumber(t *testing.T) {
	data, err := json.Marshal(ScalarThreshold(40))
	require.NoError(t, err)
	assert.Equal(t, "40", string(data))

	var parsed Threshold
	require.NoError(t, json.Unmarshal([]byte("42.5"), &parsed))
	require.NotNil(t, parsed.Value)
	assert.Equal(t, 42.5, *parsed.Value)
}

func TestThresholdJSON_RangeIsObject(t *testing.T) {
	data, err := json.Marshal(RangeThreshold(20, 40))
	require.NoError(t, err)
	assert.JSONEq(t, `{"min":20,"max":40}`, string(data))

	var parsed Threshold
	require.NoError(t, json.Unmarshal([]byte(`{"min":20,"max":40}`), &parsed))
	require.NotNil(t, parsed.Min)
	require.NotNil(t, parsed.Max)
	assert.Equal(t, 20.0, *parsed.Min)
	assert.Equal(t, 40.0, *parsed.Max)
}

func TestReadingMetric(t *testing.T) {
	reading := Reading{
		"air_temperature":   45.2,
		"soil_humidity":     json.Number("33"),
		"sensor_status":     "ok",
		"relative_humidity": nil,
	}

	v, ok := reading.Metric("air_temperature")
	assert.True(t, ok)
	assert.Equal(t, 45.2, v)

	v, ok = reading.Metric("soil_humidity")
	assert.True(t, ok)
	assert.Equal(t, 33.0, v)

	_, ok = reading.Metric("sensor_status")
	assert.False(t, ok, "non-numeric values are skipped")

	_, ok = reading.Metric("relative_humidity")
	assert.False(t, ok, "null values are skipped")

	_, ok = reading.Metric("missing_metric")
	assert.False(t, ok)
}
