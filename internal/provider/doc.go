// Package provider defines the acquisition endpoint contract shared by local
// and remote providers: lifecycle states, channel configuration and the
// consumer callback interface.
package provider
