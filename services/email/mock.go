package emailsvc

import (
	"sync"

	"github.com/socportal/jumuiya/core"
)

// Mock renders messages synchronously and keeps them for inspection.
type Mock struct {
	frontendURL string

	mu   sync.Mutex
	sent []core.EmailMessage
}

var _ core.EmailService = (*Mock)(nil)

func NewMock(conf *core.Config) *Mock {
	return &Mock{frontendURL: conf.FrontendBaseURL}
}

func (m *Mock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		if err := msg.Render(m.frontendURL); err != nil {
			panic(err)
		}
		if msg.HasRecipients() && msg.HasContent() {
			m.mu.Lock()
			m.sent = append(m.sent, *msg)
			m.mu.Unlock()
		}
	}
}

// Sent returns a copy of the messages sent so far.
func (m *Mock) Sent() []core.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.EmailMessage(nil), m.sent...)
}

// Last returns the most recent message sent to addr.
func (m *Mock) Last(addr string) (core.EmailMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		for _, to := range m.sent[i].To {
			if to.Address == addr {
				return m.sent[i], true
			}
		}
	}
	return core.EmailMessage{}, false
}

func (m *Mock) Reset() {
	m.mu.Lock()
	m.sent = nil
	m.mu.Unlock()
}
