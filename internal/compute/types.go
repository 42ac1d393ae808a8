// Package compute implements the function-compute runtime: rather than
// sandboxing and executing arbitrary handler code in-process, each
// registered function forwards an invocation as an HTTP POST to a
// developer-supplied endpoint (the shape of the actual running dev server
// process), mirroring how a local emulator stands in for a managed
// function-as-a-service runtime without reimplementing a language sandbox.
package compute

import "time"

// FunctionConfig is a registered function's configuration.
type FunctionConfig struct {
	Name        string
	InvokeURL   string // http(s) endpoint the emulator forwards invocations to
	Runtime     string // informational only, e.g. "nodejs18.x", "python3.11", "go1.x"
	Timeout     time.Duration
	Environment map[string]string
	CreatedAt   time.Time
	Version     int
}

// InvocationResult carries a function's response payload and whether the
// function reported a handled error.
type InvocationResult struct {
	StatusCode   int
	Payload      []byte
	FunctionError string // set when the function signaled a handled error
}
