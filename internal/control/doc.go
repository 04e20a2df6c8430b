// Package control implements the configuration and streaming protocol carried
// over a session.Transport.
//
// Ownership boundary:
// - message catalog (type tags 1..10)
// - Proxy: producer side, serves a local provider to one remote consumer
// - RemoteProvider: consumer side, mirrors a remote producer as a provider.Provider
package control
