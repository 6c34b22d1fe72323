// internal/browser/session/contexts.go
package session

import (
	"sync"

	"github.com/brit/playwrightium/internal/transport"
)

// ExecutionContext is one entry of the frame path: a frame and the document
// it showed when the context was entered. Token identifies the entry; a new
// token is issued whenever the entry is re-entered or its document changes.
type ExecutionContext struct {
	Frame    transport.FrameID
	Document transport.DocumentID
	Token    uint64
	// Gone is set once the frame was detached from its parent.
	Gone bool
}

// ContextManager holds the path from the top-level document to the current
// frame. Index 0 is always the root. It is safe for concurrent use because
// navigation events arrive on the session's event pump.
type ContextManager struct {
	mu      sync.Mutex
	stack   []ExecutionContext
	next    uint64
	retired map[transport.DocumentID]struct{}
}

func NewContextManager() *ContextManager {
	return &ContextManager{retired: make(map[transport.DocumentID]struct{})}
}

func (m *ContextManager) newContext(frame transport.FrameID, doc transport.DocumentID) ExecutionContext {
	m.next++
	return ExecutionContext{Frame: frame, Document: doc, Token: m.next}
}

// Reset makes doc of frame the root and drops every frame context. The root
// keeps its token when it already shows doc.
func (m *ContextManager) Reset(frame transport.FrameID, doc transport.DocumentID) ExecutionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) > 0 && m.stack[0].Frame == frame && m.stack[0].Document == doc {
		m.truncateLocked(1)
		return m.stack[0]
	}
	m.truncateLocked(0)
	m.stack = append(m.stack, m.newContext(frame, doc))
	return m.stack[0]
}

func (m *ContextManager) truncateLocked(n int) {
	for _, c := range m.stack[n:] {
		if c.Document != "" {
			m.retired[c.Document] = struct{}{}
		}
	}
	m.stack = m.stack[:n]
}

// Current returns the active context. ok is false before the first Reset.
func (m *ContextManager) Current() (ExecutionContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return ExecutionContext{}, false
	}
	return m.stack[len(m.stack)-1], true
}

// Depth is the number of frames entered below the root.
func (m *ContextManager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return 0
	}
	return len(m.stack) - 1
}

// Push enters a child frame of the current context.
func (m *ContextManager) Push(frame transport.FrameID, doc transport.DocumentID) ExecutionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.newContext(frame, doc)
	m.stack = append(m.stack, c)
	return c
}

// Pop returns to the parent context. At the root it is a no-op and reports false.
func (m *ContextManager) Pop() (ExecutionContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) <= 1 {
		if len(m.stack) == 0 {
			return ExecutionContext{}, false
		}
		return m.stack[0], false
	}
	m.stack = m.stack[:len(m.stack)-1]
	return m.stack[len(m.stack)-1], true
}

// PopToRoot leaves every frame. The root keeps its token.
func (m *ContextManager) PopToRoot() (ExecutionContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return ExecutionContext{}, false
	}
	m.stack = m.stack[:1]
	return m.stack[0], true
}

// Navigated records that frame now shows doc. A navigation of the root
// resets to the root. A navigation of a frame on the path keeps that frame
// current (with a new identity) and leaves any frames below it. Frames off
// the path and documents already superseded are ignored.
func (m *ContextManager) Navigated(frame transport.FrameID, doc transport.DocumentID, main bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stack) == 0 {
		return
	}
	if _, old := m.retired[doc]; old {
		return
	}
	if main {
		if m.stack[0].Document == doc {
			return
		}
		m.truncateLocked(0)
		m.stack = append(m.stack, m.newContext(frame, doc))
		return
	}
	for i := 1; i < len(m.stack); i++ {
		if m.stack[i].Frame != frame {
			continue
		}
		if m.stack[i].Document == doc {
			return
		}
		m.truncateLocked(i)
		m.stack = append(m.stack, m.newContext(frame, doc))
		return
	}
}

// Detached marks the frame and everything below it as gone. The caller
// stays where it is until it switches away.
func (m *ContextManager) Detached(frame transport.FrameID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 1; i < len(m.stack); i++ {
		if m.stack[i].Frame == frame {
			for j := i; j < len(m.stack); j++ {
				m.stack[j].Gone = true
			}
			return
		}
	}
}

// Alive reports whether token names a context on the current path that
// still exists. Handles from an ancestor stay usable inside a frame.
func (m *ContextManager) Alive(token uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.stack {
		if c.Token == token {
			return !c.Gone
		}
	}
	return false
}

// Path returns a copy of the stack, root first.
func (m *ContextManager) Path() []ExecutionContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutionContext(nil), m.stack...)
}
