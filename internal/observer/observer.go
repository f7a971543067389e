package observer

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/reload-entangle/internal/common"
	"github.com/tanq16/reload-entangle/internal/orchestration"
)

// Run logs every message relayed through h until ctx ends or the feed terminates.
func Run(ctx context.Context, h orchestration.Handle) error {
	sub := h.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return orchestration.ErrFeedClosed
			}
			Describe(log.Info(), msg).Msg("Observed")
		}
	}
}

// Describe adds the fields of msg to event.
func Describe(event *zerolog.Event, msg common.Message) *zerolog.Event {
	event = event.Str("type", string(msg.Type())).Str("message_id", msg.ID().String())
	switch m := msg.(type) {
	case *common.ReloadClassesRequest:
		event = event.Int("changed_files", len(m.ChangedFiles))
	case *common.AgentReloadClassesResult:
		event = event.Str("request_id", m.RequestID.String()).Bool("success", m.IsSuccess).Str("error", m.ErrorMessage)
	case *common.UIReloadClassesResult:
		event = event.Str("request_id", m.RequestID.String()).Bool("success", m.IsSuccess).Str("error", m.ErrorMessage)
	case *common.LogMessage:
		event = event.Str("text", m.Text)
	case *common.ShutdownRequest:
	case *common.ClientConnected:
		event = event.Str("client_id", m.ClientID).Str("role", string(m.ClientRole))
	case *common.ClientDisconnected:
		event = event.Str("client_id", m.ClientID).Str("role", string(m.ClientRole))
	case *common.UIRendered:
		if m.ReloadRequestID != nil {
			event = event.Str("request_id", m.ReloadRequestID.String())
		}
		event = event.Int("iteration", m.Iteration)
	}
	return event
}
