//go:build !gpu

package device

import "fmt"

// OpenWebGPU reports ErrDeviceUnavailable in builds without the gpu tag.
func OpenWebGPU(Options) (Device, error) {
	return nil, fmt.Errorf("%w: built without the gpu tag", ErrDeviceUnavailable)
}
