package labserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/starford/ansuz/internal/kernel"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleKernel serves the echo kernel: every execute produces a busy ack, a
// stream echoing the code, and an execute_reply. Code starting with "raise"
// takes the error path so the client's Errored handling can be exercised.
// Restart resets the per-connection execution counter.
func (s *Server) handleKernel(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("kernel upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	execCount := 0
	for {
		var req kernel.Request
		if err := conn.ReadJSON(&req); err != nil {
			s.logger.Debug("kernel connection closed", slog.String("error", err.Error()))
			return
		}

		switch req.Type {
		case kernel.MsgExecute:
			reply := func(r kernel.Reply) bool {
				r.ParentID = req.MsgID
				if err := conn.WriteJSON(r); err != nil {
					return false
				}
				return true
			}
			if !reply(kernel.Reply{Type: kernel.ReplyStatus, ExecutionState: "busy"}) {
				return
			}
			if strings.HasPrefix(strings.TrimSpace(req.Code), "raise") {
				reply(kernel.Reply{
					Type:      kernel.ReplyError,
					EName:     "Exception",
					EValue:    strings.TrimSpace(req.Code),
					Traceback: []string{"Traceback (echo kernel)", strings.TrimSpace(req.Code)},
				})
				reply(kernel.Reply{
					Type:   kernel.ReplyExecute,
					Status: kernel.StatusError,
					EName:  "Exception",
					EValue: strings.TrimSpace(req.Code),
				})
				continue
			}
			execCount++
			reply(kernel.Reply{Type: kernel.ReplyStream, Stream: "stdout", Text: req.Code})
			reply(kernel.Reply{
				Type:           kernel.ReplyExecute,
				Status:         kernel.StatusOK,
				ExecutionCount: execCount,
			})

		case kernel.MsgComplete:
			_ = conn.WriteJSON(kernel.Reply{
				ParentID:    req.MsgID,
				Type:        kernel.ReplyComplete,
				Status:      kernel.StatusOK,
				Matches:     []string{req.Text},
				MatchedText: req.Text,
			})

		case kernel.MsgInspect:
			_ = conn.WriteJSON(kernel.Reply{
				ParentID:  req.MsgID,
				Type:      kernel.ReplyInspect,
				Status:    kernel.StatusOK,
				Found:     false,
				DocString: "the echo kernel has no introspection",
			})

		case kernel.MsgInterrupt:
			// Nothing runs long enough to interrupt.

		case kernel.MsgRestart:
			execCount = 0

		case kernel.MsgShutdown:
			return
		}
	}
}
