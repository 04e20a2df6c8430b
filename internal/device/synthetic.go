package device

import (
	"fmt"
	"math"

	"github.com/danmuck/daqlink/internal/acquisition"
)

// Synthetic channel names.
const (
	ChannelSin    = "sin"
	ChannelSquare = "square"
	ChannelSaw    = "saw"

	ChannelNoise           = "noise"
	ChannelSmoothNoise     = "smooth_noise"
	ChannelVerySmoothNoise = "very_smooth_noise"
)

var (
	SyntheticBufferSizes   = []int{128, 256, 512, 1024, 2048, 4096}
	SyntheticSamplingRates = []int{1024, 2048, 4096, 8192, 16384}
)

func phase(index int64, rate int) float64 {
	return float64(index) * math.Pi / (2 * float64(rate))
}

// Sin completes one period every four seconds of samples.
func Sin(index int64, rate int) float32 {
	return float32(math.Sin(phase(index, rate)))
}

func Square(index int64, rate int) float32 {
	s := math.Sin(phase(index, rate))
	switch {
	case s > 0:
		return 1
	case s < 0:
		return -1
	default:
		return 0
	}
}

// Saw ramps through (-1, 0].
func Saw(index int64, rate int) float32 {
	p := phase(index, rate)
	return float32(p - math.Ceil(p))
}

const (
	noiseSeed       = 123456
	smoothNoiseTaps = 32
	// lattice points per second of samples for VerySmoothNoise
	latticeRate = 5
)

// hashNoise is an integer lattice hash; int32 arithmetic wraps.
func hashNoise(x, y, z int32) int32 {
	v := z + x*374761393 + y*668265263
	v = (v ^ (v >> 13)) * 1274126177
	return v ^ (v >> 16)
}

// noiseAt maps the hash of lattice point x uniformly onto [-1, 1].
func noiseAt(x int64, y, z int32) float32 {
	h := uint32(hashNoise(int32(x), y, z))
	return float32(float64(h)/math.MaxUint32*2 - 1)
}

// Noise is white noise, a pure function of the sample index.
func Noise(index int64, rate int) float32 {
	return noiseAt(index, noiseSeed, noiseSeed)
}

// SmoothNoise averages Noise over the next smoothNoiseTaps samples.
func SmoothNoise(index int64, rate int) float32 {
	var sum float32
	for i := int64(0); i < smoothNoiseTaps; i++ {
		sum += noiseAt(index+i, noiseSeed, noiseSeed)
	}
	return sum / smoothNoiseTaps
}

// VerySmoothNoise smoothsteps between hashed values placed latticeRate times per second.
func VerySmoothNoise(index int64, rate int) float32 {
	pos := float64(latticeRate) * float64(index) / float64(rate)
	xi := math.Floor(pos)
	t := pos - xi
	a := float64(noiseAt(int64(xi), 1, 2))
	b := float64(noiseAt(int64(xi)+1, 1, 2))
	ti := t * t * (3 - 2*t)
	return float32(a*(1-ti) + b*ti)
}

// Synthetic is a device of generated waveforms.
type Synthetic struct {
	channels *Registry
}

func NewSynthetic() *Synthetic {
	r := NewRegistry()
	// names are constant and unique
	_ = r.Register(ChannelSin, acquisition.GeneratorFunc(Sin))
	_ = r.Register(ChannelSquare, acquisition.GeneratorFunc(Square))
	_ = r.Register(ChannelSaw, acquisition.GeneratorFunc(Saw))
	_ = r.Register(ChannelNoise, acquisition.GeneratorFunc(Noise))
	_ = r.Register(ChannelSmoothNoise, acquisition.GeneratorFunc(SmoothNoise))
	_ = r.Register(ChannelVerySmoothNoise, acquisition.GeneratorFunc(VerySmoothNoise))
	return &Synthetic{channels: r}
}

func (s *Synthetic) Capabilities() Capabilities {
	return Capabilities{
		Channels:      s.channels.Names(),
		BufferSizes:   append([]int(nil), SyntheticBufferSizes...),
		SamplingRates: append([]int(nil), SyntheticSamplingRates...),
		Min:           -1,
		Max:           1,
	}
}

func (s *Synthetic) Generator(channel string) (acquisition.Generator, error) {
	gen, ok := s.channels.Resolve(channel)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	return gen, nil
}
