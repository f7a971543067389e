package common

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	requestID := uuid.New()
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "reload request",
			msg: NewReloadClassesRequest(map[string]ChangeType{
				"/out/Foo.class": ChangeModified,
				"/out/Bar.class": ChangeAdded,
				"/out/Baz.class": ChangeRemoved,
			}),
		},
		{name: "retry request", msg: NewReloadClassesRequest(nil)},
		{name: "agent success", msg: NewAgentReloadClassesResult(requestID, nil)},
		{name: "agent failure", msg: NewAgentReloadClassesResult(requestID, errors.New("boom"))},
		{name: "ui failure", msg: NewUIReloadClassesResult(requestID, errors.New("render"))},
		{name: "log", msg: NewLogMessage("A")},
		{name: "shutdown", msg: NewShutdownRequest()},
		{name: "client connected", msg: NewClientConnected("c-1", RoleCompiler)},
		{name: "client disconnected", msg: NewClientDisconnected("c-1", RoleApplication)},
		{name: "ui rendered", msg: NewUIRendered(&requestID, 3)},
		{name: "ui rendered without request", msg: NewUIRendered(nil, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalMessage(tt.msg)
			require.NoError(t, err)

			decoded, err := UnmarshalMessage(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, decoded)
			assert.Equal(t, tt.msg.ID(), decoded.ID())
			assert.True(t, SameMessage(tt.msg, decoded))
		})
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	data, err := msgpack.Marshal(MessageWrapper{Type: "nope", ID: uuid.New()})
	require.NoError(t, err)

	_, err = UnmarshalMessage(data)
	require.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestUnmarshalGarbage(t *testing.T) {
	_, err := UnmarshalMessage([]byte{0xc1, 0x00, 0x01})
	require.Error(t, err)
}

func TestMessageIdentity(t *testing.T) {
	a := NewLogMessage("same")
	b := NewLogMessage("same")

	assert.NotEqual(t, a.ID(), b.ID())
	assert.False(t, SameMessage(a, b))
	assert.True(t, SameMessage(a, a))
	assert.False(t, SameMessage(a, nil))
}

func TestNewReloadClassesRequestCopiesChanges(t *testing.T) {
	changes := map[string]ChangeType{"/a.class": ChangeAdded}
	req := NewReloadClassesRequest(changes)
	changes["/a.class"] = ChangeRemoved

	assert.Equal(t, ChangeAdded, req.ChangedFiles["/a.class"])
}
