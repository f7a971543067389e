package common

import "github.com/google/uuid"

type MessageType string

const (
	// Build tool -> Agent - compiled artifacts changed, an empty map asks for a retry
	TypeReloadClassesRequest MessageType = "reload_classes_request"

	// Agent -> everyone - outcome of a redefinition attempt
	TypeAgentReloadClassesResult MessageType = "agent_reload_classes_result"

	// UI -> everyone - outcome of re-rendering after a reload
	TypeUIReloadClassesResult MessageType = "ui_reload_classes_result"

	TypeLog                MessageType = "log"
	TypeShutdownRequest    MessageType = "shutdown_request"
	TypeClientConnected    MessageType = "client_connected"
	TypeClientDisconnected MessageType = "client_disconnected"
	TypeUIRendered         MessageType = "ui_rendered"
)

type ChangeType string

const (
	ChangeAdded    ChangeType = "added"
	ChangeModified ChangeType = "modified"
	ChangeRemoved  ChangeType = "removed"
)

type ClientRole string

const (
	RoleUnknown     ClientRole = "unknown"
	RoleTooling     ClientRole = "tooling"
	RoleCompiler    ClientRole = "compiler"
	RoleApplication ClientRole = "application"
)

// Message is implemented only by the pointer types declared in this package,
// so consumers can switch over the full variant set.
type Message interface {
	ID() uuid.UUID
	Type() MessageType
	setID(id uuid.UUID)
}

// Header carries the process-unique message identifier. It travels in the
// envelope, not in the variant payload.
type Header struct {
	MessageID uuid.UUID `msgpack:"-" json:"-"`
}

func (h *Header) ID() uuid.UUID { return h.MessageID }

func (h *Header) setID(id uuid.UUID) { h.MessageID = id }

func newHeader() Header {
	return Header{MessageID: uuid.New()}
}

// SameMessage compares messages by identity, never by payload.
func SameMessage(a, b Message) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID() == b.ID()
}

type ReloadClassesRequest struct {
	Header       `msgpack:"-" json:"-"`
	ChangedFiles map[string]ChangeType `msgpack:"changed_files" json:"changed_files"`
}

func NewReloadClassesRequest(changes map[string]ChangeType) *ReloadClassesRequest {
	files := make(map[string]ChangeType, len(changes))
	for path, change := range changes {
		files[path] = change
	}
	return &ReloadClassesRequest{Header: newHeader(), ChangedFiles: files}
}

func (*ReloadClassesRequest) Type() MessageType { return TypeReloadClassesRequest }

type AgentReloadClassesResult struct {
	Header       `msgpack:"-" json:"-"`
	RequestID    uuid.UUID `msgpack:"request_id" json:"request_id"`
	IsSuccess    bool      `msgpack:"is_success" json:"is_success"`
	ErrorMessage string    `msgpack:"error_message,omitempty" json:"error_message,omitempty"`
}

func NewAgentReloadClassesResult(requestID uuid.UUID, err error) *AgentReloadClassesResult {
	res := &AgentReloadClassesResult{Header: newHeader(), RequestID: requestID, IsSuccess: err == nil}
	if err != nil {
		res.ErrorMessage = err.Error()
	}
	return res
}

func (*AgentReloadClassesResult) Type() MessageType { return TypeAgentReloadClassesResult }

type UIReloadClassesResult struct {
	Header       `msgpack:"-" json:"-"`
	RequestID    uuid.UUID `msgpack:"request_id" json:"request_id"`
	IsSuccess    bool      `msgpack:"is_success" json:"is_success"`
	ErrorMessage string    `msgpack:"error_message,omitempty" json:"error_message,omitempty"`
}

func NewUIReloadClassesResult(requestID uuid.UUID, err error) *UIReloadClassesResult {
	res := &UIReloadClassesResult{Header: newHeader(), RequestID: requestID, IsSuccess: err == nil}
	if err != nil {
		res.ErrorMessage = err.Error()
	}
	return res
}

func (*UIReloadClassesResult) Type() MessageType { return TypeUIReloadClassesResult }

type LogMessage struct {
	Header `msgpack:"-" json:"-"`
	Text   string `msgpack:"text" json:"text"`
}

func NewLogMessage(text string) *LogMessage {
	return &LogMessage{Header: newHeader(), Text: text}
}

func (*LogMessage) Type() MessageType { return TypeLog }

type ShutdownRequest struct {
	Header `msgpack:"-" json:"-"`
}

func NewShutdownRequest() *ShutdownRequest {
	return &ShutdownRequest{Header: newHeader()}
}

func (*ShutdownRequest) Type() MessageType { return TypeShutdownRequest }

type ClientConnected struct {
	Header     `msgpack:"-" json:"-"`
	ClientID   string     `msgpack:"client_id" json:"client_id"`
	ClientRole ClientRole `msgpack:"client_role" json:"client_role"`
}

func NewClientConnected(clientID string, role ClientRole) *ClientConnected {
	return &ClientConnected{Header: newHeader(), ClientID: clientID, ClientRole: role}
}

func (*ClientConnected) Type() MessageType { return TypeClientConnected }

type ClientDisconnected struct {
	Header     `msgpack:"-" json:"-"`
	ClientID   string     `msgpack:"client_id" json:"client_id"`
	ClientRole ClientRole `msgpack:"client_role" json:"client_role"`
}

func NewClientDisconnected(clientID string, role ClientRole) *ClientDisconnected {
	return &ClientDisconnected{Header: newHeader(), ClientID: clientID, ClientRole: role}
}

func (*ClientDisconnected) Type() MessageType { return TypeClientDisconnected }

type UIRendered struct {
	Header          `msgpack:"-" json:"-"`
	ReloadRequestID *uuid.UUID `msgpack:"reload_request_id,omitempty" json:"reload_request_id,omitempty"`
	Iteration       int        `msgpack:"iteration" json:"iteration"`
}

func NewUIRendered(reloadRequestID *uuid.UUID, iteration int) *UIRendered {
	return &UIRendered{Header: newHeader(), ReloadRequestID: reloadRequestID, Iteration: iteration}
}

func (*UIRendered) Type() MessageType { return TypeUIRendered }
