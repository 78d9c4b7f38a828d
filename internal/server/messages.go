package server

import (
	"net/http"
	"time"

	"github.com/npezzotti/go-teamchat/internal/scope"
	"github.com/npezzotti/go-teamchat/internal/types"
	"github.com/npezzotti/go-teamchat/internal/viewstate"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientMessage struct {
	BaseMessage
	View    *viewstate.Request `json:"view,omitempty"`
	Publish *Publish           `json:"publish,omitempty"`
	React   *React             `json:"react,omitempty"`
	Edit    *Edit              `json:"edit,omitempty"`
	Read    *Read              `json:"read,omitempty"`
	Leave   *Leave             `json:"leave,omitempty"`
	// Join and Part are sent by the client's view sync, never over the wire.
	Join   *Join   `json:"-"`
	Part   *Part   `json:"-"`
	UserId string  `json:"-"`
	client *Client `json:"-"`
}

type Publish struct {
	Scope    string `json:"scope"`
	Content  string `json:"message"`
	Time     string `json:"time,omitempty"`
	ImageUrl string `json:"imageUrl,omitempty"`
}

type React struct {
	Scope     string `json:"scope"`
	PadNumber string `json:"padNumber"`
	Emoji     string `json:"emoji"`
	Toggle    bool   `json:"toggle,omitempty"`
}

type Edit struct {
	Scope     string `json:"scope"`
	PadNumber string `json:"padNumber"`
	Content   string `json:"message"`
}

type Read struct {
	Scope     string `json:"scope"`
	PadNumber string `json:"padNumber"`
}

// Leave ends the session. The client's presence goes offline at once
// instead of waiting for the connection to drop.
type Leave struct{}

type Join struct {
	Scope scope.Scope
}

type Part struct {
	Scope scope.Scope
}

type ServerMessage struct {
	BaseMessage
	Response     *Response      `json:"response,omitempty"`
	Message      *types.Message `json:"message,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	UserId       string         `json:"-"`
	SkipClient   *Client        `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
	Data         any    `json:"data,omitempty"`
}

type Notification struct {
	Presence       *Presence       `json:"presence,omitempty"`
	NewMessage     *NewMessage     `json:"new_message,omitempty"`
	ChannelDeleted *ChannelDeleted `json:"channel_deleted,omitempty"`
}

type Presence struct {
	UserId     string    `json:"user_id"`
	Online     bool      `json:"online"`
	LastActive time.Time `json:"last_active"`
}

// NewMessage tells a member about a message in a scope they are not viewing.
type NewMessage struct {
	Scope     string `json:"scope"`
	PadNumber string `json:"padNumber"`
	AuthorId  string `json:"author_id"`
}

type ChannelDeleted struct {
	ChannelId string `json:"channel_id"`
}

func response(id, code int, errMsg string, data any) *ServerMessage {
	msg := &ServerMessage{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Error:        errMsg,
			Data:         data,
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func NoErrOK(id int, data any) *ServerMessage {
	return response(id, http.StatusOK, "", data)
}

func NoErrAccepted(id int, data any) *ServerMessage {
	return response(id, http.StatusAccepted, "", data)
}

func ErrBadRequest(id int, reason string) *ServerMessage {
	return response(id, http.StatusBadRequest, reason, nil)
}

func ErrInvalidMessage(id int) *ServerMessage {
	return response(id, http.StatusBadRequest, "invalid message format", nil)
}

func ErrForbidden(id int) *ServerMessage {
	return response(id, http.StatusForbidden, "forbidden", nil)
}

func ErrNotFound(id int) *ServerMessage {
	return response(id, http.StatusNotFound, "not found", nil)
}

func ErrConversationNotFound(id int) *ServerMessage {
	return response(id, http.StatusNotFound, "conversation not found", nil)
}

func ErrConflict(id int, reason string) *ServerMessage {
	return response(id, http.StatusConflict, reason, nil)
}

func ErrTooManyRequests(id int) *ServerMessage {
	return response(id, http.StatusTooManyRequests, "too many requests", nil)
}

func ErrInternalError(id int) *ServerMessage {
	return response(id, http.StatusInternalServerError, "internal server error", nil)
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return response(id, http.StatusServiceUnavailable, "service unavailable", nil)
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
