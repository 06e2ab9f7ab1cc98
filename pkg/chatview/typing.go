package chatview

import "context"

// Keystroke records local typing. The first keystroke of a burst broadcasts
// typing; every keystroke pushes the automatic stop out by the idle period,
// so a burst produces exactly one stop.
func (m *Model) Keystroke(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	start := !m.typing
	m.typing = true
	m.typingSeq++
	seq := m.typingSeq
	if m.typingTimer != nil {
		m.typingTimer.Stop()
	}
	m.typingTimer = m.opts.AfterFunc(m.opts.TypingIdle, func() { m.typingExpired(seq) })
	m.mu.Unlock()

	if start {
		m.broadcastTyping(ctx, true)
	}
}

// StopTyping ends the current burst now, if there is one.
func (m *Model) StopTyping(ctx context.Context) {
	m.mu.Lock()
	if !m.typing {
		m.mu.Unlock()
		return
	}
	m.typing = false
	m.typingSeq++
	if m.typingTimer != nil {
		m.typingTimer.Stop()
		m.typingTimer = nil
	}
	m.mu.Unlock()
	m.broadcastTyping(ctx, false)
}

// Typing reports whether a local typing burst is active.
func (m *Model) Typing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typing
}

// typingExpired fires from the idle timer. A timer superseded by a later
// keystroke or an explicit stop sees a different seq and does nothing.
func (m *Model) typingExpired(seq uint64) {
	m.mu.Lock()
	if !m.typing || seq != m.typingSeq {
		m.mu.Unlock()
		return
	}
	m.typing = false
	m.typingTimer = nil
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.TypingIdle)
	defer cancel()
	m.broadcastTyping(ctx, false)
}

func (m *Model) broadcastTyping(ctx context.Context, active bool) {
	if err := m.backend.Typing(ctx, m.conversationID, active); err != nil {
		m.log.Debug().Err(err).Bool("active", active).Msg("typing signal not sent")
	}
}
