// Package server defines shared wire types and utility helpers that are
// reused across client and handler logic.
package server

import "strings"

// InboundMessage is the JSON frame clients send on both chat endpoints.
type InboundMessage struct {
	Message string `json:"message"`
}

// wordRequest is the body of the add-filter-word endpoint.
type wordRequest struct {
	Word string `json:"word"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
