//go:build !gpu

package detector

// WebGPU reports ErrNoGPU in builds without the gpu tag.
func WebGPU() (*Report, error) {
	return nil, ErrNoGPU
}
