package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultValues(t *testing.T) {
	c := Default()
	assert.Equal(t, 0.99, c.LearningConstant())
	assert.Equal(t, 10, c.GridDiscountFactor())
	assert.InDelta(t, 0.10956263608822413, c.TimeOffsetSmoothing(), 1e-15)
	assert.False(t, c.RelativePrediction())
	assert.Equal(t, "Probabilities", c.ProbabilitiesDirectory())
	assert.Equal(t, "Reward.csv", c.RewardLogPath())
}

func TestSettersOverrideDefaults(t *testing.T) {
	c := Default()
	c.SetRelativePrediction(true)
	assert.True(t, c.RelativePrediction())

	c.SetCollectorTimeout(2 * time.Second)
	assert.Equal(t, 2*time.Second, c.CollectorTimeout())

	c.SetFixedSchedulingDelay(9)
	assert.Equal(t, 9, int(c.FixedSchedulingDelay()))
}
