// Package transfer owns the transfer protocol core.
//
// Ownership boundary:
// - payload fragmentation and send/retry policy
// - per-flow reassembly slots, presence bitmap, completeness audit
// - flow lifecycle: receiving, complete, discard, timeout eviction
//
// Transports and the sink are consumed through their contracts; this
// package never touches a socket.
package transfer
