package ingester

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/model"
)

// EmailNotificationReceived is the notification type of a received e-mail.
const EmailNotificationReceived = "Received"

// EmailNotification is queued when an e-mail is received. Its shape follows the notifications mail
// services such as SES publish, so those can feed the queue directly.
type EmailNotification struct {
	NotificationType string                 `json:"notificationType"`
	Mail             *EmailNotificationMail `json:"mail"`
}

type EmailNotificationMail struct {
	MessageId   string   `json:"messageId"`
	Destination []string `json:"destination"`
}

// HttpPostNotification is queued when a backup result is posted to the receiver.
type HttpPostNotification struct {
	DeliveryType model.DeliveryType `json:"deliveryType"`
	Identifier   string             `json:"identifier"`
	BackupId     string             `json:"backupId"`
}

// WorkerRequest is the payload handed to a worker by the consumer.
type WorkerRequest struct {
	RequestId  string `json:"requestId"`
	MaxResults int    `json:"maxResults"`
}

func NewEmailNotificationPayload(messageId string, destination []string) ([]byte, error) {
	payload, err := json.Marshal(EmailNotification{
		NotificationType: EmailNotificationReceived,
		Mail: &EmailNotificationMail{
			MessageId:   messageId,
			Destination: destination,
		},
	})
	return payload, errors.WithStack(err)
}

func NewHttpPostNotificationPayload(identifier string, backupId string) ([]byte, error) {
	payload, err := json.Marshal(HttpPostNotification{
		DeliveryType: model.DeliveryTypeHttpPost,
		Identifier:   identifier,
		BackupId:     backupId,
	})
	return payload, errors.WithStack(err)
}

func marshalWorkerRequest(request *WorkerRequest) ([]byte, error) {
	payload, err := json.Marshal(request)
	return payload, errors.WithStack(err)
}

func ParseWorkerRequest(payload []byte) (*WorkerRequest, error) {
	request := &WorkerRequest{}
	if len(payload) == 0 {
		return request, nil
	}
	if err := json.Unmarshal(payload, request); err != nil {
		return nil, errors.Wrap(err, "invalid worker request")
	}
	return request, nil
}
