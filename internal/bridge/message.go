package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// MessageType identifies a bridge message in either direction.
type MessageType string

// Web to native.
const (
	TypeAppLoaded          MessageType = "APP_LOADED"
	TypeAppStarted         MessageType = "APP_STARTED"
	TypeAppFailed          MessageType = "APP_FAILED"
	TypeClosePageRequested MessageType = "CLOSE_PAGE_REQUESTED"
	TypeLoggedIn           MessageType = "LOGGED_IN"
	TypeLoggedOut          MessageType = "LOGGED_OUT"
	TypeLogin              MessageType = "LOGIN"
	TypeLogout             MessageType = "LOGOUT"
	TypePageReady          MessageType = "PAGE_READY"
	TypeShowBanner         MessageType = "SHOW_BANNER"
	TypeShowShare          MessageType = "SHOW_SHARE"
)

// Native to web.
const (
	TypeOpenPage        MessageType = "OPEN_PAGE"
	TypeSubmitEvent     MessageType = "SUBMIT_EVENT"
	TypeHandleData      MessageType = "HANDLE_DATA"
	TypeLoginSucceeded  MessageType = "LOGIN_SUCCEEDED"
	TypeLoginFailed     MessageType = "LOGIN_FAILED"
	TypeLogoutSucceeded MessageType = "LOGOUT_SUCCEEDED"
	TypeOnline          MessageType = "ONLINE"
	TypeOffline         MessageType = "OFFLINE"
)

// Message is a native to web message.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// envelope is the wire shape of a web to native message.
type envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Script renders m as the statement evaluated in the web runtime.
func (m Message) Script() (string, error) {
	data, err := sonic.ConfigStd.MarshalToString(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s message: %w", m.Type, err)
	}
	return "window.zapic.dispatch(" + data + ")", nil
}

// OpenPage asks the web app to navigate to page.
func OpenPage(page string) Message {
	return Message{Type: TypeOpenPage, Payload: struct {
		Page string `json:"page"`
	}{Page: page}}
}

// HandleData forwards a deep link or notification payload.
func HandleData(payload json.RawMessage) Message {
	return Message{Type: TypeHandleData, Payload: payload}
}

// LoginSucceeded reports a completed platform sign-in.
func LoginSucceeded(authCode string) Message {
	return Message{Type: TypeLoginSucceeded, Payload: struct {
		AuthCode string `json:"authCode"`
	}{AuthCode: authCode}}
}

// LoginFailed reports a failed platform sign-in.
func LoginFailed(reason string) Message {
	return Message{Type: TypeLoginFailed, Payload: struct {
		Error string `json:"error"`
	}{Error: reason}}
}

func LogoutSucceeded() Message { return Message{Type: TypeLogoutSucceeded} }
func Online() Message { return Message{Type: TypeOnline} }
func Offline() Message { return Message{Type: TypeOffline} }
