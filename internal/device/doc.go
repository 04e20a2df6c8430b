// Package device hosts channel sources and the in-process provider that paces them.
//
// Ownership boundary:
// - Registry: channel name to sample generator lookup
// - Synthetic and push-fed (RingSource) sources
// - Provider: ChannelConfig, lifecycle and pacer ownership for one device
package device
