// ============================================================================
// tempo-go - Go client for Tempo simulation services
// ============================================================================
//
// Package:     tempo
// Description: Connection lifecycle and blocking stream iteration for Tempo
// License:     MIT
// ============================================================================

// Package tempo is the client runtime for Tempo simulation services.
//
// A Context owns the target endpoint (address, port) and a lazily dialed,
// cached *grpc.ClientConn shared by every caller. Configure replaces the
// endpoint and drops the cached connection; Acquire returns the cached
// connection or dials a new one. Generated service clients are built on top
// of the returned connection, directly or through Stub.
//
//	c := tempo.New()
//	c.Configure("sim-host", 10001)
//	conn, err := c.Acquire(ctx)
//
// Global returns a process-wide Context for call sites that do not carry
// one. SetServer and SetServerContext configure it.
//
// Server-streaming responses are consumed through SyncStream, which pulls one
// message per call:
//
//	stream, err := tempo.OpenStream(ctx, c, watchFrames, req)
//	if err != nil {
//		return err
//	}
//	defer stream.Close()
//	for frame, err := range stream.All() {
//		...
//	}
//
// Failures are *errors.Error values from pkg/core/errors with kind
// Connection, RPC or Runtime. Nothing is retried.
package tempo
