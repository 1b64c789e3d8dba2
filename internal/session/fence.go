package session

import (
	"sync"

	"github.com/sjawhar/ghost-wispr-live/internal/protocol"
)

// Fence tracks the active session id for one consumer and rejects messages
// tagged with a different one. Each consumer owns its own Fence.
//
// Messages that carry no sessionId always pass.
type Fence struct {
	mu     sync.Mutex
	active string
}

// Admit reports whether msg may be applied, updating the active id as a side
// effect.
func (f *Fence) Admit(msg protocol.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := msg.Session()
	switch m := msg.(type) {
	case *protocol.SessionStarted:
		if id != "" {
			f.active = id
		}
		return true
	case *protocol.State:
		if id != "" {
			f.active = id
		} else if !m.Listening {
			f.active = ""
		}
		return true
	}

	if id != "" && f.active != "" && id != f.active {
		return false
	}

	switch msg.Kind() {
	case protocol.TypeSessionFinished, protocol.TypeError:
		f.active = ""
	}
	return true
}

func (f *Fence) Active() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *Fence) Reset() {
	f.mu.Lock()
	f.active = ""
	f.mu.Unlock()
}
