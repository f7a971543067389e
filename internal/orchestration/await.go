package orchestration

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tanq16/reload-entangle/internal/bus"
	"github.com/tanq16/reload-entangle/internal/common"
)

var ErrFeedClosed = errors.New("message feed terminated")

// Await returns the first message on sub accepted by match.
func Await(ctx context.Context, sub *bus.Subscription, match func(common.Message) bool) (common.Message, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case msg, ok := <-sub.C():
			if !ok {
				return nil, ErrFeedClosed
			}
			if match(msg) {
				return msg, nil
			}
		}
	}
}

// AwaitResult waits for the agent's result for requestID.
func AwaitResult(ctx context.Context, sub *bus.Subscription, requestID uuid.UUID) (*common.AgentReloadClassesResult, error) {
	msg, err := Await(ctx, sub, func(msg common.Message) bool {
		result, ok := msg.(*common.AgentReloadClassesResult)
		return ok && result.RequestID == requestID
	})
	if err != nil {
		return nil, err
	}
	return msg.(*common.AgentReloadClassesResult), nil
}

// AwaitEcho waits until the hub relays sent back to us.
func AwaitEcho(ctx context.Context, sub *bus.Subscription, sent common.Message) error {
	_, err := Await(ctx, sub, func(msg common.Message) bool {
		return common.SameMessage(msg, sent)
	})
	return err
}

// SendAndAwaitEcho sends msg and blocks until it has gone through the hub.
func SendAndAwaitEcho(ctx context.Context, h Handle, msg common.Message) error {
	sub := h.Subscribe()
	defer sub.Close()
	if err := h.Send(ctx, msg); err != nil {
		return err
	}
	return AwaitEcho(ctx, sub, msg)
}

// Request sends req and waits for the correlated agent result.
func Request(ctx context.Context, h Handle, req *common.ReloadClassesRequest) (*common.AgentReloadClassesResult, error) {
	sub := h.Subscribe()
	defer sub.Close()
	if err := h.Send(ctx, req); err != nil {
		return nil, err
	}
	return AwaitResult(ctx, sub, req.ID())
}
