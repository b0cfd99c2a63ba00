package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/healthline/service/internal/cache"
	"github.com/healthline/service/internal/database"
	"github.com/healthline/service/types"
)

// =============================================================================
// 🧵 后台任务工作池
// =============================================================================

// BackgroundWorker is a bounded worker pool for work that must happen
// after a response is already on the wire: persisting the turn's two
// messages and invalidating the cache families they affect. Modeled
// on the graceful-shutdown WaitGroup pattern the HTTP server manager
// uses for its own listeners.
type BackgroundWorker struct {
	jobs   chan func(context.Context)
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewBackgroundWorker starts workers goroutines draining a queue of
// depth queueSize. A full queue drops the newest job rather than
// blocking the request path — background persistence failures are
// logged, never surfaced, per spec.md §7.
func NewBackgroundWorker(workers, queueSize int, logger *zap.Logger) *BackgroundWorker {
	ctx, cancel := context.WithCancel(context.Background())
	bw := &BackgroundWorker{
		jobs:   make(chan func(context.Context), queueSize),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(zap.String("component", "background_worker")),
	}
	for i := 0; i < workers; i++ {
		bw.wg.Add(1)
		go bw.loop()
	}
	return bw
}

func (bw *BackgroundWorker) loop() {
	defer bw.wg.Done()
	for {
		select {
		case <-bw.ctx.Done():
			return
		case job, ok := <-bw.jobs:
			if !ok {
				return
			}
			job(bw.ctx)
		}
	}
}

// Enqueue submits job for background execution. Returns false if the
// queue was full and the job was dropped.
func (bw *BackgroundWorker) Enqueue(job func(context.Context)) bool {
	select {
	case bw.jobs <- job:
		return true
	default:
		bw.logger.Warn("background queue full, dropping task")
		return false
	}
}

// Shutdown stops accepting new jobs and waits for in-flight ones to
// finish, up to ctx's deadline.
func (bw *BackgroundWorker) Shutdown(ctx context.Context) {
	bw.cancel()
	close(bw.jobs)
	done := make(chan struct{})
	go func() {
		bw.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// schedulePersistence enqueues the write-both-messages-then-invalidate
// task for one turn. If no background worker or store is configured,
// persistence is silently skipped rather than done inline — the
// response must never wait on it.
func (o *Orchestrator) schedulePersistence(sessionID, customerID, userText string, resp *ChatResponse, detectedLang string) {
	if o.bg == nil || o.store == nil {
		return
	}

	citationsJSON, _ := json.Marshal(resp.Citations)

	o.bg.Enqueue(func(ctx context.Context) {
		now := time.Now().UTC()

		userMsg := database.ChatMessage{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      string(types.RoleUser),
			Content:   userText,
			Language:  detectedLang,
			CreatedAt: now,
		}
		assistantMsg := database.ChatMessage{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			Role:       string(types.RoleAssistant),
			Content:    resp.Answer,
			Language:   detectedLang,
			SafetyFlag: resp.Safety.Category,
			Citations:  string(citationsJSON),
			CreatedAt:  now.Add(time.Millisecond),
		}

		if err := o.insertMessage(ctx, userMsg); err != nil {
			o.logger.Warn("background persistence: user message write failed", zap.Error(err))
			return
		}
		if err := o.insertMessage(ctx, assistantMsg); err != nil {
			o.logger.Warn("background persistence: assistant message write failed", zap.Error(err))
			return
		}

		if o.cache != nil {
			_ = o.cache.InvalidateFamily(ctx, cache.FamilySession)
			_ = o.cache.InvalidateFamily(ctx, cache.FamilyMessages)
		}
	})
}

func (o *Orchestrator) insertMessage(ctx context.Context, m database.ChatMessage) error {
	_, err := o.store.Execute(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, language, safety_flag, citations, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.SessionID, m.Role, m.Content, m.Language, m.SafetyFlag, m.Citations, m.CreatedAt)
	return err
}
