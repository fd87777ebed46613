package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReportRates(t *testing.T) {
	r := &Report{TotalTasks: 4, SynthesisSuccess: 3, RegistrationSuccess: 2, ReusedCount: 1}
	assert.InDelta(t, 0.75, r.SynthesisRate(), 0.001)
	assert.InDelta(t, 0.5, r.RegistrationRate(), 0.001)
	assert.InDelta(t, 0.25, r.ReuseRate(), 0.001)
}

func TestReportRatesZeroTasks(t *testing.T) {
	r := &Report{}
	assert.Equal(t, 0.0, r.SynthesisRate())
	assert.Equal(t, 0.0, r.RegistrationRate())
	assert.Equal(t, 0.0, r.ReuseRate())
}
