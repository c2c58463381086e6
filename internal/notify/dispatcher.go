package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/telehealth-scheduling/pkg/logging"
)

// Dispatcher enqueues notification messages for asynchronous delivery.
type Dispatcher interface {
	Enqueue(ctx context.Context, msg Message) error
}

// sqsAPI is the slice of the SQS client the dispatcher and worker use.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSDispatcher publishes messages to an SQS queue.
type SQSDispatcher struct {
	client   sqsAPI
	queueURL string
	logger   *logging.Logger
}

// NewSQSDispatcher creates an SQS-backed dispatcher.
func NewSQSDispatcher(client *sqs.Client, queueURL string, logger *logging.Logger) *SQSDispatcher {
	if client == nil {
		panic("notify: sqs client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SQSDispatcher{client: client, queueURL: queueURL, logger: logger.Component("notify-dispatch")}
}

// Enqueue sends the message to the queue.
func (d *SQSDispatcher) Enqueue(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: marshal message: %w", err)
	}
	_, err = d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("notify: enqueue: %w", err)
	}
	d.logger.Debug("notification enqueued", "template", msg.Template, "appointment_id", msg.AppointmentID)
	return nil
}

// MemoryDispatcher delivers messages synchronously to a sender. Used in
// development and tests where no queue exists.
type MemoryDispatcher struct {
	sender EmailSender
	logger *logging.Logger
}

// NewMemoryDispatcher creates an in-process dispatcher.
func NewMemoryDispatcher(sender EmailSender, logger *logging.Logger) *MemoryDispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &MemoryDispatcher{sender: sender, logger: logger.Component("notify-dispatch")}
}

// Enqueue renders and sends the message inline.
func (d *MemoryDispatcher) Enqueue(ctx context.Context, msg Message) error {
	email, err := Render(msg)
	if err != nil {
		return err
	}
	if d.sender == nil {
		d.logger.Info("no email sender configured, dropping notification", "template", msg.Template)
		return nil
	}
	return d.sender.Send(ctx, email)
}

var (
	_ Dispatcher = (*SQSDispatcher)(nil)
	_ Dispatcher = (*MemoryDispatcher)(nil)
)
