// Package provider is the entry point for applications: it connects to a ddoc
// server once and hands out document stores and session stores on that connection.
//
//	p := provider.New(provider.Config{Host: "localhost", Port: 8080})
//	defer p.Close()
//
//	users, err := p.Store("users", "")
//	sessions, err := p.SessionStore(session.WithTTL(time.Hour))
//
// NewWithBackend skips the rpc layer and serves stores from any store.IStore.
package provider
