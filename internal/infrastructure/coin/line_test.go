package coin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimulatedLine_Inject(t *testing.T) {
	a := NewAccumulator()
	line := NewSimulatedLine(a.OnPulse)

	line.Inject(3)

	assert.Equal(t, int64(30), a.Snapshot().TotalCents)
	assert.NoError(t, line.Close())
}

func TestSimulatedLine_InjectZero(t *testing.T) {
	a := NewAccumulator()
	line := NewSimulatedLine(a.OnPulse)

	line.Inject(0)

	assert.Zero(t, a.Snapshot().TotalCents)
}
