package notify

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/ports"
	"github.com/jacksonlee411/authhooks/modules/authconfig/domain/types"
)

const defaultFlashLimit = 20

// Flash queues notifications per session until the console drains them.
type Flash struct {
	mu     sync.Mutex
	limit  int
	queues map[string][]types.Notification
}

func NewFlash(limit int) *Flash {
	if limit <= 0 {
		limit = defaultFlashLimit
	}
	return &Flash{limit: limit, queues: map[string][]types.Notification{}}
}

func (f *Flash) Notify(_ context.Context, n types.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := append(f.queues[n.SessionID], n)
	if len(q) > f.limit {
		q = q[len(q)-f.limit:]
	}
	f.queues[n.SessionID] = q
}

// Drain returns and clears the queued notifications of a session, oldest first.
func (f *Flash) Drain(sessionID string) []types.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.queues[sessionID]
	delete(f.queues, sessionID)
	if q == nil {
		return []types.Notification{}
	}
	return q
}

func (f *Flash) Forget(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.queues, sessionID)
}

type Logger struct {
	logger *log.Logger
}

func NewLogger(l *log.Logger) *Logger { return &Logger{logger: l} }

func (l *Logger) Notify(_ context.Context, n types.Notification) {
	if l.logger == nil {
		return
	}
	kv := []any{"session_id", n.SessionID, "project_ref", n.ProjectRef}
	if n.Detail != "" {
		kv = append(kv, "detail", n.Detail)
	}
	switch n.Level {
	case types.NotificationError:
		l.logger.Error(n.Message, kv...)
	default:
		l.logger.Info(n.Message, kv...)
	}
}

// Multi fans a notification out to every non-nil notifier in order.
type Multi []ports.Notifier

func (m Multi) Notify(ctx context.Context, n types.Notification) {
	for _, target := range m {
		if target != nil {
			target.Notify(ctx, n)
		}
	}
}
