package fabric

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	awcperrors "github.com/anuraagsster/AI-agent-builder-sub000/pkg/errors"
	"github.com/anuraagsster/AI-agent-builder-sub000/pkg/models"
)

const fifoSuffix = ".fifo"

// defaultGroupID is used for FIFO sends when the caller supplies no
// message group.
const defaultGroupID = "default"

// SQSAPI is the subset of the SQS client the hosted-queue transport
// needs.
type SQSAPI interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// queueTransport holds hosted-queue state: the SQS client, the default
// queue, and the name-to-URL cache.
type queueTransport struct {
	mu           sync.RWMutex
	client       SQSAPI
	defaultQueue string
	urls         map[string]string
}

func newQueueTransport(defaultQueue string) *queueTransport {
	return &queueTransport{
		defaultQueue: defaultQueue,
		urls:         make(map[string]string),
	}
}

// EnableQueue attaches an SQS client to the fabric's hosted-queue
// transport.
func (f *Fabric) EnableQueue(client SQSAPI) {
	f.queue.mu.Lock()
	defer f.queue.mu.Unlock()
	f.queue.client = client
}

// SetDefaultQueue names the queue used when SendToQueue gets no
// explicit queue.
func (f *Fabric) SetDefaultQueue(name string) {
	f.queue.mu.Lock()
	defer f.queue.mu.Unlock()
	f.queue.defaultQueue = name
}

// CreateQueue creates a hosted queue and caches its URL. FIFO queues
// get the ".fifo" suffix and the FifoQueue attribute the service
// requires.
func (f *Fabric) CreateQueue(ctx context.Context, name string, fifo bool, attributes map[string]string) (string, error) {
	q := f.queue
	q.mu.RLock()
	client := q.client
	q.mu.RUnlock()
	if client == nil {
		return "", awcperrors.Unavailable("hosted queue transport not enabled")
	}
	attrs := make(map[string]string, len(attributes)+1)
	for k, v := range attributes {
		attrs[k] = v
	}
	if fifo {
		if !strings.HasSuffix(name, fifoSuffix) {
			name += fifoSuffix
		}
		attrs["FifoQueue"] = "true"
	}
	out, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: attrs,
	})
	if err != nil {
		return "", awcperrors.Wrap(awcperrors.KindUnavailable, err, "create queue %s", name)
	}
	q.mu.Lock()
	q.urls[name] = aws.ToString(out.QueueUrl)
	q.mu.Unlock()
	return name, nil
}

// SendToQueue serializes the message and sends it to the named queue,
// or the default queue when name is empty. FIFO queues always get a
// deduplication id and a message group id.
func (f *Fabric) SendToQueue(ctx context.Context, msgType string, content interface{}, queueName, senderID string, metadata models.JSONMap, groupID string) models.Delivery {
	q := f.queue
	q.mu.RLock()
	client := q.client
	if queueName == "" {
		queueName = q.defaultQueue
	}
	q.mu.RUnlock()
	if client == nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: "hosted queue transport not enabled"}
	}
	if queueName == "" {
		return models.Delivery{Status: models.DeliveryFailed, Error: "no queue specified and no default queue set"}
	}
	url, err := f.queueURL(ctx, queueName)
	if err != nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: err.Error()}
	}

	msg := f.newMessage(msgType, content, senderID, metadata)
	body, err := f.serializer.Serialize(msg)
	if err != nil {
		return models.Delivery{Status: models.DeliveryFailed, Error: err.Error()}
	}
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(string(body)),
	}
	if strings.HasSuffix(queueName, fifoSuffix) {
		if groupID == "" {
			groupID = defaultGroupID
		}
		input.MessageDeduplicationId = aws.String(uuid.NewString())
		input.MessageGroupId = aws.String(groupID)
	}
	out, err := client.SendMessage(ctx, input)
	if err != nil {
		f.metrics.IncrementCounter("fabric.queue.send_failed", 1)
		return models.Delivery{Status: models.DeliveryFailed, Error: err.Error()}
	}
	f.metrics.IncrementCounter("fabric.queue.sent", 1)
	return models.Delivery{Status: models.DeliverySent, MessageID: aws.ToString(out.MessageId)}
}

// ReceiveFromQueue fetches up to max messages (capped at 10) with long
// polling up to wait seconds (capped at 20). Each returned message is
// annotated with its receipt handle and message id for later deletion.
func (f *Fabric) ReceiveFromQueue(ctx context.Context, queueName string, max, waitSeconds, visibilitySeconds int32) ([]*models.Message, error) {
	q := f.queue
	q.mu.RLock()
	client := q.client
	q.mu.RUnlock()
	if client == nil {
		return nil, awcperrors.Unavailable("hosted queue transport not enabled")
	}
	url, err := f.queueURL(ctx, queueName)
	if err != nil {
		return nil, err
	}
	if max < 1 {
		max = 1
	} else if max > 10 {
		max = 10
	}
	if waitSeconds < 0 {
		waitSeconds = 0
	} else if waitSeconds > 20 {
		waitSeconds = 20
	}
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     waitSeconds,
	}
	if visibilitySeconds > 0 {
		input.VisibilityTimeout = visibilitySeconds
	}
	out, err := client.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, awcperrors.Wrap(awcperrors.KindUnavailable, err, "receive from queue %s", queueName)
	}
	msgs := make([]*models.Message, 0, len(out.Messages))
	for _, raw := range out.Messages {
		msg, err := f.serializer.Deserialize([]byte(aws.ToString(raw.Body)))
		if err != nil {
			f.logger.Error("dropping undecodable queue message", map[string]interface{}{
				"queue": queueName,
				"error": err.Error(),
			})
			continue
		}
		if msg.Metadata == nil {
			msg.Metadata = make(models.JSONMap, 2)
		}
		msg.Metadata["receipt_handle"] = aws.ToString(raw.ReceiptHandle)
		msg.Metadata["message_id"] = aws.ToString(raw.MessageId)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// DeleteFromQueue acknowledges a received message by its receipt
// handle.
func (f *Fabric) DeleteFromQueue(ctx context.Context, queueName, receiptHandle string) error {
	q := f.queue
	q.mu.RLock()
	client := q.client
	q.mu.RUnlock()
	if client == nil {
		return awcperrors.Unavailable("hosted queue transport not enabled")
	}
	url, err := f.queueURL(ctx, queueName)
	if err != nil {
		return err
	}
	_, err = client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return awcperrors.Wrap(awcperrors.KindUnavailable, err, "delete from queue %s", queueName)
	}
	return nil
}

// queueURL resolves a queue name through the cache, falling back to
// GetQueueUrl.
func (f *Fabric) queueURL(ctx context.Context, name string) (string, error) {
	q := f.queue
	q.mu.RLock()
	url, ok := q.urls[name]
	client := q.client
	q.mu.RUnlock()
	if ok {
		return url, nil
	}
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		var notFound *sqstypes.QueueDoesNotExist
		if errors.As(err, &notFound) {
			return "", awcperrors.NotFound("queue %s does not exist", name)
		}
		return "", awcperrors.Wrap(awcperrors.KindUnavailable, err, "resolve queue %s", name)
	}
	url = aws.ToString(out.QueueUrl)
	q.mu.Lock()
	q.urls[name] = url
	q.mu.Unlock()
	return url, nil
}
