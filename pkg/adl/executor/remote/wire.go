// Package remote dispatches nodes to an executor service over HTTP and
// serves a Backend on the other end of that connection.
//
// One node is one synchronous POST of a JSON-encoded executor.Request to
// ExecutePath. Bodies larger than MaxRequestBytes are rejected by both sides.
package remote

import (
	"github.com/danielbaustin/agent-design-language-sub000/pkg/adl/executor"
)

const (
	// ExecutePath is the route that executes one node.
	ExecutePath = "/v1/execute"

	// HealthPath reports liveness.
	HealthPath = "/healthz"

	// MaxRequestBytes caps the encoded request.
	MaxRequestBytes = 1 << 20

	// MaxResponseBytes caps how much of a response the client reads.
	MaxResponseBytes = 4 << 20
)

// response is the body of every ExecutePath reply.
type response struct {
	Output any            `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	Cause  executor.Cause `json:"cause,omitempty"`
}
