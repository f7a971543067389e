package common

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

var ErrUnknownMessageType = errors.New("unknown message type")

// MessageWrapper is the serialized form of every message: the variant tag, the
// identifier and the variant payload.
type MessageWrapper struct {
	Type    MessageType        `msgpack:"type"`
	ID      uuid.UUID          `msgpack:"id"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

func MarshalMessage(msg Message) ([]byte, error) {
	payload, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", msg.Type(), err)
	}
	data, err := msgpack.Marshal(MessageWrapper{
		Type:    msg.Type(),
		ID:      msg.ID(),
		Payload: payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s envelope: %w", msg.Type(), err)
	}
	return data, nil
}

func UnmarshalMessage(data []byte) (Message, error) {
	var wrapper MessageWrapper
	if err := msgpack.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	msg, err := newMessage(wrapper.Type)
	if err != nil {
		return nil, err
	}
	if err := msgpack.Unmarshal(wrapper.Payload, msg); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", wrapper.Type, err)
	}
	msg.setID(wrapper.ID)
	return msg, nil
}

func newMessage(t MessageType) (Message, error) {
	switch t {
	case TypeReloadClassesRequest:
		return &ReloadClassesRequest{}, nil
	case TypeAgentReloadClassesResult:
		return &AgentReloadClassesResult{}, nil
	case TypeUIReloadClassesResult:
		return &UIReloadClassesResult{}, nil
	case TypeLog:
		return &LogMessage{}, nil
	case TypeShutdownRequest:
		return &ShutdownRequest{}, nil
	case TypeClientConnected:
		return &ClientConnected{}, nil
	case TypeClientDisconnected:
		return &ClientDisconnected{}, nil
	case TypeUIRendered:
		return &UIRendered{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, t)
	}
}
