package device

import (
	"fmt"

	"github.com/danmuck/daqlink/internal/acquisition"
)

// Capabilities are the fixed sets a device offers. Defaults must be members
// of their sets; a zero default selects the first element.
type Capabilities struct {
	Channels      []string
	BufferSizes   []int
	SamplingRates []int
	Min           float32
	Max           float32

	DefaultBufferSize   int
	DefaultSamplingRate int
}

// Device is a channel source: synthetic, or an adapter over acquisition hardware.
type Device interface {
	Capabilities() Capabilities
	// Generator returns the sample source for one channel. It is called once per stream.
	Generator(channel string) (acquisition.Generator, error)
}

// HardwareBufferSizes are the buffer sizes offered for hardware-backed channels.
var HardwareBufferSizes = []int{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192}

// HardwareCapabilities offers power-of-two rates within [minRate, maxRate] and
// defaults to the middle buffer size and the lowest rate.
func HardwareCapabilities(channels []string, minRate, maxRate int, lo, hi float32) (Capabilities, error) {
	if len(channels) == 0 {
		return Capabilities{}, ErrNoChannels
	}
	rates := PowerOfTwoRates(minRate, maxRate)
	if len(rates) == 0 {
		return Capabilities{}, fmt.Errorf("%w: [%d, %d]", ErrInvalidRateSpan, minRate, maxRate)
	}
	sizes := append([]int(nil), HardwareBufferSizes...)
	return Capabilities{
		Channels:            append([]string(nil), channels...),
		BufferSizes:         sizes,
		SamplingRates:       rates,
		Min:                 lo,
		Max:                 hi,
		DefaultBufferSize:   sizes[len(sizes)/2],
		DefaultSamplingRate: rates[0],
	}, nil
}

// PowerOfTwoRates lists every power of two in [lo, hi].
func PowerOfTwoRates(lo, hi int) []int {
	if lo < 1 {
		lo = 1
	}
	var out []int
	for r := 1; r > 0 && r <= hi; r <<= 1 {
		if r >= lo {
			out = append(out, r)
		}
	}
	return out
}
