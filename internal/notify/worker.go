package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

const (
	receiveBatchSize       = 10
	defaultReceiveWaitTime = 20 // seconds, long polling
	visibilityTimeout      = 60 // seconds
)

// Worker drains the notification queue and delivers email. Messages
// that fail to send are left on the queue; SQS redelivers them after
// the visibility timeout and dead-letters persistent failures.
type Worker struct {
	client      sqsAPI
	queueURL    string
	sender      EmailSender
	logger      *logging.Logger
	waitSeconds int32
	concurrency int
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithPollWait sets the SQS long-poll wait time in seconds.
func WithPollWait(seconds int) WorkerOption {
	return func(w *Worker) {
		if seconds > 0 {
			w.waitSeconds = int32(seconds)
		}
	}
}

// WithConcurrency sets the number of concurrent poll loops.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// NewWorker creates a queue consumer.
func NewWorker(client *sqs.Client, queueURL string, sender EmailSender, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if client == nil {
		panic("notify: sqs client required")
	}
	if sender == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &Worker{
		client:      client,
		queueURL:    queueURL,
		sender:      sender,
		logger:      logger.Component("notify-worker"),
		waitSeconds: defaultReceiveWaitTime,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until the context is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("notification worker started", "queue", w.queueURL, "concurrency", w.concurrency)
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()
	w.logger.Info("notification worker stopping")
	return ctx.Err()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.poll(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("poll failed, backing off", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func (w *Worker) poll(ctx context.Context) error {
	out, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(w.queueURL),
		MaxNumberOfMessages: receiveBatchSize,
		WaitTimeSeconds:     w.waitSeconds,
		VisibilityTimeout:   visibilityTimeout,
	})
	if err != nil {
		return err
	}

	for _, raw := range out.Messages {
		if err := w.handle(ctx, aws.ToString(raw.Body)); err != nil {
			// leave on queue for redelivery
			w.logger.Error("notification delivery failed", "error", err)
			continue
		}
		_, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(w.queueURL),
			ReceiptHandle: raw.ReceiptHandle,
		})
		if err != nil {
			w.logger.Warn("delete message failed", "error", err)
		}
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, body string) error {
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		// malformed payloads will never succeed; log and drop
		w.logger.Error("dropping malformed notification payload", "error", err)
		return nil
	}
	email, err := Render(msg)
	if err != nil {
		w.logger.Error("dropping notification with unknown template", "template", msg.Template)
		return nil
	}
	if err := w.sender.Send(ctx, email); err != nil {
		return err
	}
	w.logger.Info("notification delivered", "template", msg.Template, "appointment_id", msg.AppointmentID)
	return nil
}
