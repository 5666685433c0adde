package kernel

import "context"

// Transport is the opaque asynchronous channel to a kernel process. Send
// returns once the request is handed to the channel; replies, zero or more
// per request, arrive later through the handler given at dial time. A dying
// kernel may deliver nothing.
type Transport interface {
	Send(req Request) error
	Close() error
}

// ReplyHandler receives every message the transport delivers.
type ReplyHandler func(Reply)

// Dialer opens a transport to the kernel serving notebookID, wiring handler
// as the delivery callback.
type Dialer func(ctx context.Context, notebookID string, handler ReplyHandler) (Transport, error)
