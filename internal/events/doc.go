// Package events implements the graph's asynchronous event notification path.
//
// Stages push Records (a Code plus two opaque params) from any goroutine; the
// application drains them in FIFO order with Queue.Pop, blocking up to a
// timeout. A Bridge in front of the queue optionally posts a payload-free
// wake message to a registered target for every pushed record.
//
// Payload ownership: for a small fixed set of codes (see OwnsPayload) a param
// carries a Payload whose lifetime must follow the record. Queue.Push retains
// it; whoever consumes the record (FreeEvent, WaitForTerminal, Flush)
// releases it.
package events
