package provider

import "time"

// Snapshot is a copy of a provider's observable configuration.
type Snapshot struct {
	State         State     `json:"state"`
	Channel       string    `json:"channel"`
	BufferSize    int       `json:"buffer_size"`
	SamplingRate  int       `json:"sampling_rate"`
	Channels      []string  `json:"channels"`
	BufferSizes   []int     `json:"buffer_sizes"`
	SamplingRates []int     `json:"sampling_rates"`
	MinValue      float32   `json:"min_value"`
	MaxValue      float32   `json:"max_value"`
	TakenAt       time.Time `json:"taken_at"`
}

// Consumer receives data and lifecycle notifications from a provider.
// Calls arrive on provider-owned goroutines and must not block for long.
type Consumer interface {
	OnSettingsChange(Snapshot)
	// ReceiveData delivers one buffer; samples may be reused after return.
	ReceiveData(index uint64, samples []float32)
	DataStreamStarted(at time.Time)
	// DataStreamEnded is final for a stream: no ReceiveData follows until the next start.
	DataStreamEnded()
	ResetIndex()
}

// Provider is an acquisition endpoint, local or remote.
type Provider interface {
	State() State
	Snapshot() Snapshot

	SelectedChannel() string
	SetSelectedChannel(name string) error
	SelectedBufferSize() int
	SetSelectedBufferSize(n int) error
	SelectedSamplingRate() int
	SetSelectedSamplingRate(n int) error

	AvailableChannels() []string
	AvailableBufferSizes() []int
	AvailableSamplingRates() []int
	MinValue() float32
	MaxValue() float32

	// Subscribe replaces the consumer; nil clears it.
	Subscribe(c Consumer)
	Initialize() error
	Start() error
	// Stop ends an open stream; it is a no-op when not Working.
	Stop()
}

// NopConsumer discards every notification.
type NopConsumer struct{}

func (NopConsumer) OnSettingsChange(Snapshot)     {}
func (NopConsumer) ReceiveData(uint64, []float32) {}
func (NopConsumer) DataStreamStarted(time.Time)   {}
func (NopConsumer) DataStreamEnded()              {}
func (NopConsumer) ResetIndex()                   {}
