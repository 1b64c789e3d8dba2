package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sjawhar/ghost-wispr-live/internal/level"
	"github.com/sjawhar/ghost-wispr-live/internal/observability"
	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
)

type Status string

const (
	StatusIdle         Status = "idle"
	StatusListening    Status = "listening"
	StatusTranscribing Status = "transcribing"
	StatusStopped      Status = "stopped"
	StatusErrored      Status = "errored"
)

type Warning struct {
	Message string   `json:"message"`
	Actions []string `json:"actions,omitempty"`
}

// Notice is a transient, user-visible report of a session error.
type Notice struct {
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	At      time.Time `json:"at"`
}

type Snapshot struct {
	SessionID   string    `json:"sessionId,omitempty"`
	Status      Status    `json:"status"`
	FinalText   string    `json:"finalText"`
	InterimText string    `json:"interimText"`
	AudioLevel  float64   `json:"audioLevel"`
	Levels      []float64 `json:"levels,omitempty"`
	Warning     *Warning  `json:"warning,omitempty"`
	Notice      *Notice   `json:"notice,omitempty"`
}

// View is the live-session consumer: a fenced hub handler that maintains the
// session status, transcript and audio meter.
type View struct {
	fence    Fence
	smoother *level.Smoother
	log      zerolog.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	mu        sync.Mutex
	sessionID string
	status    Status
	assembler Assembler
	warning   *Warning
	notice    *Notice
	onChange  func(Snapshot)
}

func NewView(smoother *level.Smoother, logger zerolog.Logger, metrics *observability.Metrics) *View {
	if smoother == nil {
		smoother = level.NewSmoother(level.DefaultCapacity)
	}
	return &View{
		smoother: smoother,
		log:      logger,
		metrics:  metrics,
		now:      time.Now,
		status:   StatusIdle,
	}
}

// OnChange registers a callback invoked after every applied message.
func (v *View) OnChange(callback func(Snapshot)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onChange = callback
}

// Handle applies one message. It satisfies hub.Handler.
func (v *View) Handle(msg protocol.Message) error {
	if !v.fence.Admit(msg) {
		v.metrics.IncFenceDrop(string(msg.Kind()))
		v.log.Debug().
			Str("type", string(msg.Kind())).
			Str("session_id", msg.Session()).
			Str("active_session_id", v.fence.Active()).
			Msg("dropping message for stale session")
		return nil
	}

	// Audio levels arrive at frame rate and go straight to the smoother.
	if m, ok := msg.(*protocol.AudioLevel); ok {
		v.smoother.Push(m.Level)
		return nil
	}

	v.mu.Lock()
	changed := v.apply(msg)
	// The reported session is always the one the fence is scoped to.
	if active := v.fence.Active(); active != v.sessionID {
		v.sessionID = active
		changed = true
	}
	callback := v.onChange
	v.mu.Unlock()

	if changed && callback != nil {
		callback(v.Snapshot())
	}
	return nil
}

// apply must be called with v.mu held.
func (v *View) apply(msg protocol.Message) bool {
	switch m := msg.(type) {
	case *protocol.SessionStarted:
		v.assembler.Start()
		v.smoother.Reset()
		v.warning = nil
		v.notice = nil
		v.status = StatusListening
		v.log.Info().Str("session_id", m.SessionID).Msg("session started")

	case *protocol.State:
		switch {
		case m.Transcribing:
			v.status = StatusTranscribing
		case m.Listening:
			v.status = StatusListening
		case v.status == StatusListening || v.status == StatusTranscribing:
			v.status = StatusIdle
		}

	case *protocol.Status:
		status, ok := statusFromWire(m.Status)
		if !ok {
			v.log.Debug().Str("status", m.Status).Msg("ignoring unknown status")
			return false
		}
		v.status = status

	case *protocol.Transcribing:
		v.status = StatusTranscribing

	case *protocol.Transcript:
		v.assembler.Apply(*m)

	case *protocol.InputWarning:
		if m.Message == "" {
			v.warning = nil
		} else {
			v.warning = &Warning{Message: m.Message, Actions: append([]string(nil), m.Actions...)}
		}

	case *protocol.SessionFinished:
		v.assembler.Finish(m.Record)
		v.smoother.Reset()
		v.warning = nil
		v.status = StatusStopped
		v.log.Info().Str("session_id", m.SessionID).Msg("session finished")

	case *protocol.Error:
		v.smoother.Reset()
		v.warning = nil
		v.status = StatusIdle
		v.notice = &Notice{Message: m.Message, Code: m.Code, At: v.now()}
		v.log.Warn().Str("code", m.Code).Str("message", m.Message).Msg("session error")

	default:
		return false
	}
	return true
}

func statusFromWire(s string) (Status, bool) {
	switch s {
	case "idle":
		return StatusIdle, true
	case "listening":
		return StatusListening, true
	case "transcribing":
		return StatusTranscribing, true
	case "stopped":
		return StatusStopped, true
	case "error", "errored":
		return StatusErrored, true
	default:
		return "", false
	}
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	snap := Snapshot{
		SessionID:   v.sessionID,
		Status:      v.status,
		FinalText:   v.assembler.Final(),
		InterimText: v.assembler.Interim(),
	}
	if v.warning != nil {
		w := *v.warning
		w.Actions = append([]string(nil), v.warning.Actions...)
		snap.Warning = &w
	}
	if v.notice != nil {
		n := *v.notice
		snap.Notice = &n
	}
	v.mu.Unlock()

	snap.AudioLevel = v.smoother.Level()
	snap.Levels = v.smoother.Levels()
	return snap
}

// ActiveSession returns the id of the session in progress.
func (v *View) ActiveSession() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sessionID == "" {
		return "", ErrNoActiveSession
	}
	return v.sessionID, nil
}

// DismissNotice clears the transient error notice.
func (v *View) DismissNotice() {
	v.mu.Lock()
	v.notice = nil
	v.mu.Unlock()
}

// Level and Levels let a View act as a level.Source.
func (v *View) Level() float64    { return v.smoother.Level() }
func (v *View) Levels() []float64 { return v.smoother.Levels() }
