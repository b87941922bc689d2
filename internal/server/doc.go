// Package server implements the HTTP and WebSocket edge of the chat relay.
//
// The implementation is organized into specialized files for configuration,
// clients, routing, and HTTP handlers; the chat semantics themselves live in
// the relay package and are injected via NewServer.
package server
