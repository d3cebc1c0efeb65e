package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/ritera/royalty-engine/royalty"
)

const (
	TypeSendMail = "royalty:send_mail"
	QueueMail    = "mail"
)

type mailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewMailTask wraps msg in an asynq task.
func NewMailTask(msg royalty.Message) (*asynq.Task, error) {
	data, err := json.Marshal(mailPayload{To: msg.To, Subject: msg.Subject, Body: msg.Body})
	if err != nil {
		return nil, fmt.Errorf("marshal mail payload: %w", err)
	}
	return asynq.NewTask(TypeSendMail, data), nil
}

// Queue enqueues messages on Redis for cmd/worker to deliver.
type Queue struct {
	client *asynq.Client
}

func NewQueue(redisAddr string) *Queue {
	return &Queue{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

func (q *Queue) Send(ctx context.Context, msg royalty.Message) error {
	task, err := NewMailTask(msg)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueMail),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// =============================================================================
// WORKER SIDE
// =============================================================================

// MailHandler delivers queued mail through a gateway. A returned error
// makes asynq retry the task.
type MailHandler struct {
	next royalty.Notifier
	log  *zap.Logger
}

func NewMailHandler(next royalty.Notifier, log *zap.Logger) *MailHandler {
	return &MailHandler{next: next, log: log}
}

func (h *MailHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p mailPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		h.log.Error("failed to unmarshal mail payload", zap.Error(err))
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	if err := h.next.Send(ctx, royalty.Message{To: p.To, Subject: p.Subject, Body: p.Body}); err != nil {
		h.log.Warn("mail delivery failed", zap.String("to", p.To), zap.Error(err))
		return fmt.Errorf("send mail: %w", err)
	}

	h.log.Info("mail delivered", zap.String("to", p.To), zap.String("subject", p.Subject))
	return nil
}

// Register adds the handler to mux.
func (h *MailHandler) Register(mux *asynq.ServeMux) {
	mux.Handle(TypeSendMail, h)
}
