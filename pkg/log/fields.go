package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID      = "user_id"
	FieldDisplayName = "display_name"

	// Messaging
	FieldGroupID      = "group_id"
	FieldMessageID    = "message_id"
	FieldConnectionID = "connection_id"

	// Rooms
	FieldRoomID   = "room_id"
	FieldRoomName = "room_name"

	// Service
	FieldService = "service"
)
