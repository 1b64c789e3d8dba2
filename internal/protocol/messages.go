package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type identifies a websocket frame variant.
type Type string

const (
	TypeState            Type = "state"
	TypeStatus           Type = "status"
	TypeSessionStarted   Type = "session_started"
	TypeTranscribing     Type = "transcribing"
	TypeTranscript       Type = "transcript"
	TypeSessionFinished  Type = "session_finished"
	TypeAudioLevel       Type = "audio_level"
	TypeInputWarning     Type = "input_warning"
	TypeError            Type = "error"
	TypeHistoryUpdated   Type = "history_updated"
	TypeSettingsUpdated  Type = "settings_updated"
	TypeDownloadProgress Type = "model_download_progress"
	TypeDownloadComplete Type = "model_download_complete"
	TypeDownloadError    Type = "model_download_error"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownType = errors.New("unknown message type")
)

// Message is one decoded inbound frame. The set of implementations is closed:
// every variant lives in this file.
type Message interface {
	Kind() Type
	// Session returns the frame's sessionId, or "" when the emitter did not tag it.
	Session() string
	isMessage()
}

// Envelope carries the fields shared by every variant.
type Envelope struct {
	Type      Type   `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
}

func (e Envelope) Kind() Type      { return e.Type }
func (e Envelope) Session() string { return e.SessionID }
func (Envelope) isMessage()        {}

func (e *Envelope) envelope() *Envelope { return e }

type State struct {
	Envelope
	Listening    bool `json:"listening"`
	Transcribing bool `json:"transcribing,omitempty"`
}

type Status struct {
	Envelope
	Status string `json:"status"`
}

type SessionStarted struct {
	Envelope
	StartedAt string `json:"startedAt,omitempty"`
}

type Transcribing struct {
	Envelope
}

// Transcript is a partial or final recognition event. A non-nil Content is a
// full snapshot of the session text.
type Transcript struct {
	Envelope
	Text    string  `json:"text,omitempty"`
	IsFinal bool    `json:"isFinal,omitempty"`
	Content *string `json:"content,omitempty"`
}

type FinishedSession struct {
	ID       string  `json:"id"`
	Content  string  `json:"content"`
	Duration float64 `json:"duration,omitempty"`
}

type SessionFinished struct {
	Envelope
	Record *FinishedSession `json:"session,omitempty"`
}

type AudioLevel struct {
	Envelope
	Level float64 `json:"level"`
}

// InputWarning with an empty Message clears any displayed warning.
type InputWarning struct {
	Envelope
	Message string   `json:"message"`
	Actions []string `json:"actions,omitempty"`
}

type Error struct {
	Envelope
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type HistoryUpdated struct {
	Envelope
}

type SettingsUpdated struct {
	Envelope
}

type DownloadProgress struct {
	Envelope
	Model    string  `json:"model"`
	Progress float64 `json:"progress"`
	Bytes    int64   `json:"bytes,omitempty"`
	Total    int64   `json:"total,omitempty"`
}

type DownloadComplete struct {
	Envelope
	Model string `json:"model"`
}

type DownloadError struct {
	Envelope
	Model   string `json:"model"`
	Message string `json:"message"`
}

// Decode parses one inbound frame into its concrete variant.
func Decode(raw []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var msg Message
	switch env.Type {
	case TypeState:
		msg = &State{}
	case TypeStatus:
		msg = &Status{}
	case TypeSessionStarted:
		msg = &SessionStarted{}
	case TypeTranscribing:
		msg = &Transcribing{}
	case TypeTranscript:
		msg = &Transcript{}
	case TypeSessionFinished:
		msg = &SessionFinished{}
	case TypeAudioLevel:
		msg = &AudioLevel{}
	case TypeInputWarning:
		msg = &InputWarning{}
	case TypeError:
		msg = &Error{}
	case TypeHistoryUpdated:
		msg = &HistoryUpdated{}
	case TypeSettingsUpdated:
		msg = &SettingsUpdated{}
	case TypeDownloadProgress:
		msg = &DownloadProgress{}
	case TypeDownloadComplete:
		msg = &DownloadComplete{}
	case TypeDownloadError:
		msg = &DownloadError{}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrMalformed, env.Type, err)
	}
	return msg, nil
}

// Encode serializes msg, stamping the discriminator from its concrete type so
// callers cannot send a frame whose type disagrees with its shape.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, errors.New("encode nil message")
	}
	stamp(msg)
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return payload, nil
}

func kindOf(msg Message) Type {
	switch msg.(type) {
	case *State:
		return TypeState
	case *Status:
		return TypeStatus
	case *SessionStarted:
		return TypeSessionStarted
	case *Transcribing:
		return TypeTranscribing
	case *Transcript:
		return TypeTranscript
	case *SessionFinished:
		return TypeSessionFinished
	case *AudioLevel:
		return TypeAudioLevel
	case *InputWarning:
		return TypeInputWarning
	case *Error:
		return TypeError
	case *HistoryUpdated:
		return TypeHistoryUpdated
	case *SettingsUpdated:
		return TypeSettingsUpdated
	case *DownloadProgress:
		return TypeDownloadProgress
	case *DownloadComplete:
		return TypeDownloadComplete
	case *DownloadError:
		return TypeDownloadError
	}
	return ""
}

// stamp writes the discriminator only when it differs, so encoding a decoded
// message shared between goroutines does not write to it.
func stamp(msg Message) {
	want := kindOf(msg)
	if want == "" || msg.Kind() == want {
		return
	}
	if e, ok := msg.(interface{ envelope() *Envelope }); ok {
		e.envelope().Type = want
	}
}

// Text returns a pointer to s, for building Transcript snapshots.
func Text(s string) *string {
	return &s
}
