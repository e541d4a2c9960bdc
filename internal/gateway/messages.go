package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
)

// protocolVersion is the Jupyter messaging protocol version spoken on
// the channel.
const protocolVersion = "5.4"

// Message types recognized on the channel.
const (
	msgTypeExecuteRequest = "execute_request"
	msgTypeStream         = "stream"
	msgTypeExecuteResult  = "execute_result"
	msgTypeDisplayData    = "display_data"
	msgTypeError          = "error"
	msgTypeExecuteReply   = "execute_reply"
)

type messageHeader struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Username string `json:"username,omitempty"`
	Session  string `json:"session,omitempty"`
	Version  string `json:"version,omitempty"`
}

type executeContent struct {
	Code            string         `json:"code"`
	Silent          bool           `json:"silent"`
	StoreHistory    bool           `json:"store_history"`
	UserExpressions map[string]any `json:"user_expressions"`
	AllowStdin      bool           `json:"allow_stdin"`
	StopOnError     bool           `json:"stop_on_error"`
}

// executeRequest is the outbound shell-channel message carrying code
// to execute. The field layout is wire-exact for the Enterprise
// Gateway.
type executeRequest struct {
	Header       messageHeader  `json:"header"`
	ParentHeader map[string]any `json:"parent_header"`
	Metadata     map[string]any `json:"metadata"`
	Content      executeContent `json:"content"`
	Buffers      []any          `json:"buffers"`
	Channel      string         `json:"channel"`
}

// newExecuteRequest builds an execute_request with a fresh message ID.
func newExecuteRequest(code, username string) executeRequest {
	return executeRequest{
		Header: messageHeader{
			MsgID:    uuid.New().String(),
			MsgType:  msgTypeExecuteRequest,
			Username: username,
			Session:  uuid.New().String(),
			Version:  protocolVersion,
		},
		ParentHeader: map[string]any{},
		Metadata:     map[string]any{},
		Content: executeContent{
			Code:            code,
			Silent:          false,
			StoreHistory:    true,
			UserExpressions: map[string]any{},
			AllowStdin:      false,
			StopOnError:     true,
		},
		Buffers: []any{},
		Channel: "shell",
	}
}

// channelMessage is an inbound message. Content is decoded per
// msg_type.
type channelMessage struct {
	MsgType      string          `json:"msg_type"`
	ParentHeader messageHeader   `json:"parent_header"`
	Content      json.RawMessage `json:"content"`
}

type streamContent struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// dataContent covers execute_result and display_data, which share the
// mimetype-keyed data bundle.
type dataContent struct {
	Data map[string]any `json:"data"`
}

type errorContent struct {
	Ename     string   `json:"ename"`
	Evalue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

type replyContent struct {
	Status string `json:"status"`
}
