package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/kasuganosora/baycode/hook"
	"github.com/kasuganosora/baycode/model"
)

const (
	queueSize  = 1024
	batchSize  = 100
	flushEvery = 2 * time.Second
)

// Actions recorded by the hook handlers.
const (
	ActionRegister      = "register"
	ActionLogin         = "login"
	ActionLoginFailed   = "login_failed"
	ActionLogout        = "logout"
	ActionResetAsked    = "password_reset_requested"
	ActionResetComplete = "password_reset"
)

// Entry holds one audit event to be logged.
type Entry struct {
	TraceID   string
	AccountID string
	Username  string
	Action    string
	Detail    any
	Error     string
	IP        string
}

// RequestInfo carries the HTTP request fields an entry is stamped with.
type RequestInfo struct {
	TraceID string
	IP      string
}

type requestKey struct{}

// WithRequestInfo returns a context whose audit entries carry info.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestKey{}, info)
}

func requestInfo(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestKey{}).(RequestInfo)
	return info
}

// Service writes audit entries to the database asynchronously in batches.
type Service struct {
	db       *gorm.DB
	ch       chan *model.AuditLog
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// New creates a Service and starts its background writer.
func New(db *gorm.DB, logger *zap.Logger) *Service {
	svc := &Service{
		db:     db,
		ch:     make(chan *model.AuditLog, queueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	svc.wg.Add(1)
	go svc.worker()
	return svc
}

// Log enqueues entry. Entries are dropped when the queue is full or the
// service has stopped.
func (svc *Service) Log(entry Entry) {
	record := &model.AuditLog{
		TraceID:   entry.TraceID,
		AccountID: entry.AccountID,
		Username:  entry.Username,
		Action:    entry.Action,
		Error:     entry.Error,
		IP:        entry.IP,
	}
	if entry.Detail != nil {
		if raw, err := json.Marshal(entry.Detail); err == nil {
			record.Detail = datatypes.JSON(raw)
		}
	}
	select {
	case <-svc.stopCh:
		svc.logger.Warn("audit service stopped, dropping entry", zap.String("action", entry.Action))
		return
	default:
	}
	select {
	case svc.ch <- record:
	default:
		svc.logger.Warn("audit channel full, dropping entry",
			zap.String("action", entry.Action))
	}
}

// Attach records account events raised on hooks.
func (svc *Service) Attach(hooks *hook.Center) {
	onAccount := func(event, action string) {
		hooks.Register(event, 90, "audit", func(ctx context.Context, _ string, data any) (any, error) {
			if acc, ok := data.(model.Account); ok {
				svc.logFrom(ctx, Entry{AccountID: acc.ID, Username: acc.Username, Action: action})
			}
			return data, nil
		})
	}
	onAccount(hook.OnAccountRegistered, ActionRegister)
	onAccount(hook.OnAccountLogin, ActionLogin)
	onAccount(hook.OnPasswordResetAsked, ActionResetAsked)
	onAccount(hook.OnPasswordReset, ActionResetComplete)

	hooks.Register(hook.OnLoginFailed, 90, "audit", func(ctx context.Context, _ string, data any) (any, error) {
		username, _ := data.(string)
		svc.logFrom(ctx, Entry{Username: username, Action: ActionLoginFailed, Error: "invalid credential"})
		return data, nil
	})
	hooks.Register(hook.OnAccountLogout, 90, "audit", func(ctx context.Context, _ string, data any) (any, error) {
		id, _ := data.(string)
		svc.logFrom(ctx, Entry{AccountID: id, Action: ActionLogout})
		return data, nil
	})
}

func (svc *Service) logFrom(ctx context.Context, e Entry) {
	info := requestInfo(ctx)
	e.TraceID, e.IP = info.TraceID, info.IP
	svc.Log(e)
}

// Stop flushes queued entries and shuts down the writer. It blocks until
// the writer has finished and is safe to call more than once.
func (svc *Service) Stop(_ context.Context) {
	svc.stopOnce.Do(func() { close(svc.stopCh) })
	svc.wg.Wait()
}

func (svc *Service) worker() {
	defer svc.wg.Done()
	ticker := time.NewTicker(flushEvery)
	defer ticker.Stop()

	batch := make([]*model.AuditLog, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := svc.db.CreateInBatches(&batch, batchSize).Error; err != nil {
			svc.logger.Error("audit batch write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-svc.ch:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-svc.stopCh:
			for {
				select {
				case entry := <-svc.ch:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}
