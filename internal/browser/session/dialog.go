// internal/browser/session/dialog.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brit/playwrightium/api/schemas"
	"github.com/brit/playwrightium/internal/transport"
)

// Response is how a dialog gets answered.
type Response struct {
	Accept bool
	// Text is sent to prompts when HasText is set. Accepting a prompt
	// without text submits its default value.
	Text    string
	HasText bool
}

// Expectation is a response armed for the next dialog. It resolves once a
// dialog has been answered with it.
type Expectation struct {
	resp   Response
	done   chan struct{}
	dialog schemas.Dialog
	err    error
}

// Done is closed when the expectation resolved.
func (e *Expectation) Done() <-chan struct{} { return e.done }

// Wait blocks until a dialog was answered with the armed response.
func (e *Expectation) Wait(ctx context.Context, timeout time.Duration) (schemas.Dialog, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.done:
		return e.dialog, e.err
	case <-timer.C:
		return schemas.Dialog{}, fmt.Errorf("%w: no dialog appeared within %s", schemas.ErrNoAlertPresent, timeout)
	case <-ctx.Done():
		return schemas.Dialog{}, ctx.Err()
	}
}

func (e *Expectation) resolve(d schemas.Dialog, err error) {
	e.dialog, e.err = d, err
	close(e.done)
}

// DialogMediator is a single-slot mailbox for native dialogs. Only the
// event pump fills the slot; answering a dialog empties it.
type DialogMediator struct {
	tr     transport.Transport
	logger *zap.Logger

	mu      sync.Mutex
	pending *schemas.Dialog
	armed   []*Expectation
	changed chan struct{}
	closed  bool
}

func NewDialogMediator(tr transport.Transport, logger *zap.Logger) *DialogMediator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DialogMediator{
		tr:      tr,
		logger:  logger.Named("dialogs"),
		changed: make(chan struct{}),
	}
}

// signalLocked wakes everybody waiting on Changed.
func (m *DialogMediator) signalLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// Changed returns a channel that is closed on the next state change.
func (m *DialogMediator) Changed() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

// Pending returns the dialog waiting for an answer, if any.
func (m *DialogMediator) Pending() (schemas.Dialog, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return schemas.Dialog{}, false
	}
	return *m.pending, true
}

// Opened is called by the event pump when the browser raised a dialog. An
// armed expectation answers it immediately; otherwise it waits in the slot.
func (m *DialogMediator) Opened(ctx context.Context, d schemas.Dialog) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if len(m.armed) > 0 {
		exp := m.armed[0]
		m.armed = m.armed[1:]
		m.mu.Unlock()
		m.logger.Debug("Answering dialog with armed response.", zap.Uint64("seq", d.Seq), zap.String("kind", string(d.Kind)))
		err := m.answer(ctx, d, exp.resp)
		exp.resolve(d, err)
		m.mu.Lock()
		m.signalLocked()
		m.mu.Unlock()
		return
	}
	if m.pending != nil {
		m.logger.Warn("Dialog opened while another is pending.", zap.Uint64("pending_seq", m.pending.Seq), zap.Uint64("seq", d.Seq))
	}
	m.pending = &d
	m.signalLocked()
	m.mu.Unlock()
	m.logger.Debug("Dialog pending.", zap.Uint64("seq", d.Seq), zap.String("kind", string(d.Kind)))
}

// Closed is called by the event pump when the browser reports a dialog was
// closed. A zero Seq matches whatever is pending.
func (m *DialogMediator) Closed(d schemas.Dialog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return
	}
	if d.Seq != 0 && d.Seq != m.pending.Seq {
		return
	}
	m.pending = nil
	m.signalLocked()
}

// WaitPending blocks up to timeout for a dialog to show up.
func (m *DialogMediator) WaitPending(ctx context.Context, timeout time.Duration) (schemas.Dialog, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return schemas.Dialog{}, schemas.ErrSessionClosed
		}
		if m.pending != nil {
			d := *m.pending
			m.mu.Unlock()
			return d, nil
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return schemas.Dialog{}, schemas.ErrNoAlertPresent
		case <-ctx.Done():
			return schemas.Dialog{}, ctx.Err()
		}
	}
}

// Check reports whether the dialog identified by seq is still pending.
func (m *DialogMediator) Check(seq uint64) (schemas.Dialog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return schemas.Dialog{}, schemas.ErrSessionClosed
	}
	if m.pending == nil || m.pending.Seq != seq {
		return schemas.Dialog{}, schemas.ErrNoAlertPresent
	}
	return *m.pending, nil
}

// Respond answers the pending dialog identified by seq. A dialog that was
// already answered or replaced fails with ErrNoAlertPresent.
func (m *DialogMediator) Respond(ctx context.Context, seq uint64, resp Response) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return schemas.ErrSessionClosed
	}
	if m.pending == nil || m.pending.Seq != seq {
		m.mu.Unlock()
		return schemas.ErrNoAlertPresent
	}
	d := *m.pending
	m.pending = nil
	m.signalLocked()
	m.mu.Unlock()

	return m.answer(ctx, d, resp)
}

func (m *DialogMediator) answer(ctx context.Context, d schemas.Dialog, resp Response) error {
	text := ""
	if d.Kind == schemas.DialogPrompt && resp.Accept {
		text = d.DefaultPrompt
		if resp.HasText {
			text = resp.Text
		}
	}
	err := m.tr.HandleDialog(ctx, resp.Accept, text)
	if errors.Is(err, transport.ErrNoDialog) {
		return fmt.Errorf("%w: %v", schemas.ErrNoAlertPresent, err)
	}
	if err != nil {
		return Wrap("handle dialog", err)
	}
	m.logger.Debug("Dialog answered.", zap.Uint64("seq", d.Seq), zap.Bool("accept", resp.Accept))
	return nil
}

// Arm registers resp for the next dialog. If a dialog is already pending it
// is answered right away.
func (m *DialogMediator) Arm(ctx context.Context, resp Response) (*Expectation, error) {
	exp := &Expectation{resp: resp, done: make(chan struct{})}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, schemas.ErrSessionClosed
	}
	if m.pending == nil {
		m.armed = append(m.armed, exp)
		m.mu.Unlock()
		return exp, nil
	}
	d := *m.pending
	m.pending = nil
	m.signalLocked()
	m.mu.Unlock()

	exp.resolve(d, m.answer(ctx, d, resp))
	return exp, exp.err
}

// Disarm drops an expectation that never fired.
func (m *DialogMediator) Disarm(exp *Expectation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.armed {
		if e == exp {
			m.armed = append(m.armed[:i], m.armed[i+1:]...)
			return
		}
	}
}

// Close empties the mailbox and fails every armed expectation.
func (m *DialogMediator) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.pending = nil
	for _, exp := range m.armed {
		exp.resolve(schemas.Dialog{}, schemas.ErrSessionClosed)
	}
	m.armed = nil
	m.signalLocked()
}
