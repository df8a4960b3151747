package gmail

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidEnvelope = errors.New("invalid push envelope")

// PushEnvelope is the Pub/Sub push request body.
type PushEnvelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Notification is the decoded mailbox change carried in the envelope data.
type Notification struct {
	EmailAddress string      `json:"emailAddress"`
	HistoryID    json.Number `json:"historyId"`
	MessageID    string      `json:"-"`
}

// DecodePush validates the envelope and decodes its base64 JSON payload.
func DecodePush(body []byte) (Notification, error) {
	var envelope PushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	data := strings.TrimSpace(envelope.Message.Data)
	if data == "" {
		return Notification{}, fmt.Errorf("%w: message.data is required", ErrInvalidEnvelope)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = decodeURLBase64(data)
		if err != nil {
			return Notification{}, fmt.Errorf("%w: decode data: %v", ErrInvalidEnvelope, err)
		}
	}
	var n Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: decode notification: %v", ErrInvalidEnvelope, err)
	}
	n.EmailAddress = strings.TrimSpace(n.EmailAddress)
	if n.EmailAddress == "" {
		return Notification{}, fmt.Errorf("%w: emailAddress is required", ErrInvalidEnvelope)
	}
	n.MessageID = envelope.Message.MessageID
	return n, nil
}

// decodeURLBase64 accepts URL-safe base64 with or without padding, and
// tolerates the standard alphabet.
func decodeURLBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '+':
			return '-'
		case '/':
			return '_'
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
