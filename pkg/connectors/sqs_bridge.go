package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/openmomo/ledgerd/pkg/models"
)

const SQSBridgeKey = "sqs-bridge"

// Caps one drain pass so a backed-up queue cannot stall a polling tick.
const maxDrainPasses = 10

// SQSAPI defines the SQS operations the bridge connector depends on.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// bridgeBatch is the message body device bridges enqueue: one batch of raw
// events from a single device.
type bridgeBatch struct {
	DeviceId string            `json:"device_id"`
	Events   []models.RawEvent `json:"events"`
}

// SQSBridge drains device-bridge batches from an SQS queue. Unlike the REST
// connector it ignores the fetch window: the queue itself is the backlog, and
// every drained message is consumed exactly once.
type SQSBridge struct {
	Client   SQSAPI
	QueueURL string
}

// NewSQSBridge creates a new SQSBridge.
func NewSQSBridge(client SQSAPI, queueURL string) *SQSBridge {
	return &SQSBridge{
		Client:   client,
		QueueURL: queueURL,
	}
}

// Make sure we conform to the interface
var _ Connector = (*SQSBridge)(nil)

func (s *SQSBridge) Key() string {
	return SQSBridgeKey
}

// FetchSince drains the queue and returns the events of every readable batch.
// Messages are deleted only after their batch parses, so malformed bodies
// surface again rather than being silently dropped.
func (s *SQSBridge) FetchSince(ctx context.Context, cfg map[string]string, since, until time.Time) ([]models.RawEvent, error) {
	queueURL := cfg["queue_url"]
	if queueURL == "" {
		queueURL = s.QueueURL
	}
	if queueURL == "" {
		return nil, fmt.Errorf("missing queue_url")
	}

	var events []models.RawEvent
	for pass := 0; pass < maxDrainPasses; pass++ {
		out, err := s.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     0,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to receive messages from SQS: %w", err)
		}
		if len(out.Messages) == 0 {
			break
		}

		for _, msg := range out.Messages {
			var batch bridgeBatch
			if msg.Body == nil {
				continue
			}
			if err := json.Unmarshal([]byte(*msg.Body), &batch); err != nil {
				return events, fmt.Errorf("failed to unmarshal bridge batch: %w", err)
			}
			events = append(events, batch.Events...)

			if _, err := s.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(queueURL),
				ReceiptHandle: msg.ReceiptHandle,
			}); err != nil {
				return events, fmt.Errorf("failed to delete message from SQS: %w", err)
			}
		}
	}
	return events, nil
}

// TestConnection verifies the queue exists and is reachable.
func (s *SQSBridge) TestConnection(ctx context.Context, cfg map[string]string) Probe {
	queueURL := cfg["queue_url"]
	if queueURL == "" {
		queueURL = s.QueueURL
	}
	if queueURL == "" {
		return Probe{OK: false, Error: "missing queue_url"}
	}

	_, err := s.Client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: aws.String(queueURL),
	})
	if err != nil {
		return Probe{OK: false, Error: err.Error()}
	}
	return Probe{OK: true}
}
