//go:build gpu

package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebGPUReleaseDropsQueueBeforeDevice(t *testing.T) {
	dev, err := OpenWebGPU(Options{})
	if err != nil {
		t.Skipf("no GPU adapter: %v", err)
	}
	d, ok := dev.(*WebGPU)
	require.True(t, ok)
	require.NotNil(t, d.queue)

	d.Release()
	assert.Nil(t, d.queue)
	assert.Nil(t, d.device)
	d.Release()
}
