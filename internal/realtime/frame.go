package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/lingodesk/bellhop/internal/domain"
)

// Textual heartbeat frames exchanged with the push endpoint.
const (
	pingFrame = "ping"
	pongFrame = "pong"
)

const envelopeTypeNotification = "notification"

// Frame decode errors.
var (
	ErrUnknownEnvelope = errors.New("unknown frame envelope")
	ErrInvalidEvent    = errors.New("invalid notification payload")
)

var validate = validator.New()

// envelope is the JSON wrapper around pushed notifications.
type envelope struct {
	Type string               `json:"type"`
	Data *domain.Notification `json:"data"`
}

// DecodeFrame parses one raw text frame from the push channel.
// A bare "pong" heartbeat reply yields heartbeat=true and no event.
func DecodeFrame(raw []byte) (n *domain.Notification, heartbeat bool, err error) {
	if bytes.Equal(bytes.TrimSpace(raw), []byte(pongFrame)) {
		return nil, true, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("decode frame: %w", err)
	}

	if env.Type != envelopeTypeNotification || env.Data == nil {
		return nil, false, fmt.Errorf("%w: type %q", ErrUnknownEnvelope, env.Type)
	}

	if err := validate.Struct(env.Data); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	return env.Data, false, nil
}
