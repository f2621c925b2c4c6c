package readout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromTextCompact(t *testing.T) {
	res := FromText(Compact, "150.2\n104.9\n245\n262")
	assert.Equal(t, Compact, res.Display)
	assert.Equal(t, []float64{150.2, 104.9, 245, 262}, res.Numbers)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)

	data := res.Data()
	require.Len(t, data, 4)
	assert.Equal(t, ptr(150.2), data["ball_speed"])
	assert.Equal(t, ptr(262), data["total_distance"])
}

func TestFromTextEmpty(t *testing.T) {
	res := FromText(Extended, "")
	assert.Empty(t, res.Numbers)
	assert.Zero(t, res.Confidence)
	data := res.Data()
	require.Len(t, data, 16)
	for k, v := range data {
		assert.Nil(t, v, k)
	}
}
