package chat

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/Ezmad-Ze/chat-app/logger"
	"github.com/Ezmad-Ze/chat-app/service/auth"
	"github.com/Ezmad-Ze/chat-app/service/storage"
	"github.com/Ezmad-Ze/chat-app/tools/decode"
	errs "github.com/Ezmad-Ze/chat-app/tools/errs"
)

// Wire protocol: every frame, both directions, is a JSON envelope
// {"event": ..., "id": ..., "data": {...}}. The id is the client's
// correlation handle; the server answers a request carrying one with
// exactly one "ack" frame reusing that id. Requests without an id get an
// "error" event on failure and nothing on success. Clients treat a missing
// ack after 5s as failure; work already committed (a persisted message)
// is not rolled back by that timeout.

// Client-initiated events.
const (
	EventJoinRoom    = "joinRoom"
	EventCreateRoom  = "createRoom"
	EventSendMessage = "sendMessage"
	EventLeaveRoom   = "leaveRoom"
)

// Server-initiated events.
const (
	EventAck         = "ack"
	EventError       = "error"
	EventMessages    = "messages"
	EventMessage     = "message"
	EventUserJoined  = "userJoined"
	EventUserLeft    = "userLeft"
	EventRoomCreated = "roomCreated"
)

// Frame is an inbound envelope. Data stays loose here; each handler
// decodes it into its fixed payload type and validates the schema instead
// of trusting the shape at runtime.
type Frame struct {
	Event string         `json:"event"`
	ID    string         `json:"id,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

func ParseFrame(raw []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("frame missing event")
	}
	return &f, nil
}

type outboundFrame struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// AckData is the correlated response body.
type AckData struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ErrorData is the fire-and-forget failure notice for clients that did not
// supply a correlation handle.
type ErrorData struct {
	Error string `json:"error"`
}

// PresenceData announces a membership change to a room's members.
type PresenceData struct {
	RoomID string        `json:"roomId"`
	User   auth.Identity `json:"user"`
}

// HistoryData is the snapshot sent once per join; live updates arrive as
// individual "message" events afterwards.
type HistoryData struct {
	RoomID   string            `json:"roomId"`
	Messages []storage.Message `json:"messages"`
}

func EncodeEvent(event string, data any) []byte {
	return encode(outboundFrame{Event: event, Data: data})
}

func EncodeAck(id string, data any) []byte {
	return encode(outboundFrame{Event: EventAck, ID: id, Data: AckData{Success: true, Data: data}})
}

func EncodeAckError(id, msg string) []byte {
	return encode(outboundFrame{Event: EventAck, ID: id, Data: AckData{Success: false, Error: msg}})
}

func encode(f outboundFrame) []byte {
	b, err := json.Marshal(f)
	if err != nil {
		logger.Errorf("[chat] marshal frame event=%s: %v", f.Event, err)
		return nil
	}
	return b
}

// Request payloads. One fixed, validated schema per event name;
// length bounds on room names and message content are configuration
// driven and enforced in the service.

type JoinRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId" validate:"required"`
}

type CreateRoomPayload struct {
	Name string `json:"name" validate:"required"`
}

type SendMessagePayload struct {
	RoomID  string `json:"roomId" validate:"required"`
	Content string `json:"content" validate:"required"`
}

var validate = validator.New()

// decodePayload turns a loose data object into a typed payload and runs
// schema validation; any mismatch is a recoverable validation failure.
func decodePayload[T any](data map[string]any) (*T, error) {
	out, err := decode.DecodeMap[T](data)
	if err != nil {
		return nil, errs.ErrValidation.WithDetail("malformed payload")
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok && len(verrs) > 0 {
			return nil, errs.ErrValidation.WithDetail(fieldMessage(verrs[0]))
		}
		return nil, errs.ErrValidation
	}
	return out, nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		*target = verrs
		return true
	}
	return false
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", jsonFieldName(fe.Field()))
	default:
		return fmt.Sprintf("%s is invalid", jsonFieldName(fe.Field()))
	}
}

// Struct field names come back exported (RoomID); report the wire name.
func jsonFieldName(field string) string {
	switch field {
	case "RoomID":
		return "roomId"
	case "Name":
		return "name"
	case "Content":
		return "content"
	default:
		return field
	}
}
