// Package kernel manages the client side of one compute kernel: the session
// lifecycle, request/reply correlation by message id, and the websocket
// transport carrying the messages.
package kernel

// Request message types.
const (
	MsgExecute   = "execute_request"
	MsgComplete  = "complete_request"
	MsgInspect   = "object_info_request"
	MsgInterrupt = "interrupt_request"
	MsgRestart   = "restart_request"
	MsgShutdown  = "shutdown_request"
)

// Reply message types. The *_reply types are terminal: they consume the
// pending entry for their message id. The rest are intermediate and route to
// the same callbacks without consuming it.
const (
	ReplyStatus   = "status"
	ReplyStream   = "stream"
	ReplyResult   = "pyout"
	ReplyError    = "pyerr"
	ReplyExecute  = "execute_reply"
	ReplyComplete = "complete_reply"
	ReplyInspect  = "object_info_reply"
)

// Terminal reply statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusAbort   = "abort"
	StatusTimeout = "timeout"
)

// Request is one outgoing kernel call. MsgID is assigned by the session.
type Request struct {
	MsgID     string `json:"msg_id"`
	Type      string `json:"msg_type"`
	Code      string `json:"code,omitempty"`
	Text      string `json:"text,omitempty"`
	CursorPos int    `json:"cursor_pos,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
}

// Reply is one incoming kernel message, correlated to its request by
// ParentID. The populated fields depend on Type.
type Reply struct {
	ParentID       string   `json:"parent_id"`
	Type           string   `json:"msg_type"`
	Status         string   `json:"status,omitempty"`
	ExecutionState string   `json:"execution_state,omitempty"`
	ExecutionCount int      `json:"execution_count,omitempty"`
	Stream         string   `json:"stream,omitempty"`
	Text           string   `json:"text,omitempty"`
	EName          string   `json:"ename,omitempty"`
	EValue         string   `json:"evalue,omitempty"`
	Traceback      []string `json:"traceback,omitempty"`
	Matches        []string `json:"matches,omitempty"`
	MatchedText    string   `json:"matched_text,omitempty"`
	Found          bool     `json:"found,omitempty"`
	DocString      string   `json:"docstring,omitempty"`
	NextInput      string   `json:"next_input,omitempty"`
}

// Terminal reports whether a reply type consumes its pending entry.
func Terminal(replyType string) bool {
	switch replyType {
	case ReplyExecute, ReplyComplete, ReplyInspect:
		return true
	}
	return false
}

// terminalFor maps a request type to its terminal reply type, used when the
// session synthesizes a timeout reply.
func terminalFor(requestType string) string {
	switch requestType {
	case MsgComplete:
		return ReplyComplete
	case MsgInspect:
		return ReplyInspect
	default:
		return ReplyExecute
	}
}
