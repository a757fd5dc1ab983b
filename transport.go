package sigdaq

import "time"

// Transport is the reliable byte-stream link to the instrument. It is
// consumed, not implemented, by this package: implementations must provide
// command queuing with optional per-keyword deduplication and rate
// limiting, and a lock that serializes multi-step exchanges (send request,
// flush, read block, read trailer) against other logical operations.
//
// The Lock/Unlock pair is not reentrant; callers hold it exactly once
// around a complete exchange and never acquire it while already holding
// the configuration cache lock.
type Transport interface {
	// SendCommand queues a command with no reply.
	SendCommand(cmd string)
	// Converse queues a command, flushes, and waits for one text reply.
	Converse(cmd string) (string, error)
	// FlushCommandQueue pushes all queued commands to the instrument.
	FlushCommandQueue() error
	// ReadRawData reads exactly len(buf) bytes into buf.
	ReadRawData(buf []byte) error
	// ReadReply reads one newline-terminated reply, without the newline.
	ReadReply() (string, error)
	// EnableRateLimiting sets a minimum interval between commands.
	EnableRateLimiting(interval time.Duration)
	// DeduplicateCommand marks a command keyword so that a newly queued
	// command replaces any queued-but-unsent command with the same
	// keyword and target.
	DeduplicateCommand(keyword string)
	// Lock serializes a multi-step exchange.
	Lock()
	// Unlock releases the exchange lock.
	Unlock()
}
