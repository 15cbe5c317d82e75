package domain

// WebSocket frame types from client.
const (
	FrameTypeSubscribe   = "subscribe"
	FrameTypeUnsubscribe = "unsubscribe"
	FrameTypeMessage     = "message"
	FrameTypePing        = "ping"
)

// WebSocket frame types to client.
const (
	FrameTypeConnected    = "connected"
	FrameTypeSubscribed   = "subscribed"
	FrameTypeUnsubscribed = "unsubscribed"
	FrameTypeError        = "error"
	FrameTypePong         = "pong"
)

// Error codes.
const (
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeNotAMember           = "NOT_A_MEMBER"
	ErrCodeNotSubscribed        = "NOT_SUBSCRIBED"
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// BaseFrame is the base structure for all WebSocket frames.
type BaseFrame struct {
	Type string `json:"type"`
}

// Client -> Server frames

type SubscribeFrame struct {
	Type       string `json:"type"`
	GroupID    string `json:"group_id"`
	Credential string `json:"credential"`
}

type UnsubscribeFrame struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

type MessageFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	Kind      string `json:"kind,omitempty"`
	MeetingID string `json:"meeting_id,omitempty"`
}

// Server -> Client frames

type ConnectedFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connection_id"`
}

type SubscribedFrame struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

type UnsubscribedFrame struct {
	Type    string `json:"type"`
	GroupID string `json:"group_id"`
}

type MessageOutFrame struct {
	Type    string       `json:"type"`
	Message *ChatMessage `json:"message"`
}

type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorFrame(code, message string) *ErrorFrame {
	return &ErrorFrame{
		Type:    FrameTypeError,
		Code:    code,
		Message: message,
	}
}

func NewMessageFrame(msg *ChatMessage) *MessageOutFrame {
	return &MessageOutFrame{
		Type:    FrameTypeMessage,
		Message: msg,
	}
}
