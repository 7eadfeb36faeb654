package ingester

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/identity"
	"github.com/backupmon/backupmon/internal/model"
)

// MetaExtractFunc reads the metadata of a queued backup result. It returns a *bmerrors.PayloadExtractError when
// the payload is not in its format, and any other error when the payload is in its format but unusable.
type MetaExtractFunc func(payload []byte) (*model.BackupResultMeta, error)

// MetaExtractor is a named candidate tried by ExtractBackupResultMeta.
type MetaExtractor struct {
	Name    string
	Extract MetaExtractFunc
}

// ExtractBackupResultMeta offers the payload to each extractor in turn and returns the metadata from the first
// one that accepts it.
func (i *Ingester) ExtractBackupResultMeta(ctx *bmcontext.Context, ingestId string, payload []byte) (*model.BackupResultMeta, error) {
	extractErrors := map[string]string{}

	for _, extractor := range i.metaExtractors {
		meta, err := extractor.Extract(payload)
		if err == nil {
			ctx.Log.Debugf("Queue payload accepted by %s extractor", extractor.Name)
			return meta, nil
		}
		var signal *bmerrors.PayloadExtractError
		if errors.As(err, &signal) {
			extractErrors[extractor.Name] = signal.Message
		} else {
			extractErrors[extractor.Name] = fmt.Sprintf("%+v", err)
		}
	}

	return nil, &bmerrors.InvalidBackupPayloadError{
		Message:  "Invalid queue JSON (failed to extract payload)",
		Code:     bmerrors.CodeInvalidQueueJson,
		IngestId: ingestId,
		Context: map[string]interface{}{
			"queuePayload":  string(payload),
			"extractErrors": extractErrors,
		},
	}
}

func decodeObject(payload []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil || fields == nil {
		return nil, bmerrors.NewPayloadExtractError("Queue payload is not a JSON object")
	}
	return fields, nil
}

// EmailMetaExtractor accepts e-mail notifications, taking the identity from the first recipient that satisfies
// constraints.
func EmailMetaExtractor(constraints *identity.RecipientConstraints) MetaExtractor {
	return MetaExtractor{
		Name: string(model.DeliveryTypeEmail),
		Extract: func(payload []byte) (*model.BackupResultMeta, error) {
			fields, err := decodeObject(payload)
			if err != nil {
				return nil, err
			}
			var notificationType string
			if raw, ok := fields["notificationType"]; !ok || json.Unmarshal(raw, &notificationType) != nil {
				return nil, bmerrors.NewPayloadExtractError("Missing or invalid notificationType")
			}
			if notificationType != EmailNotificationReceived {
				return nil, bmerrors.NewPayloadExtractError("Unexpected notificationType %q", notificationType)
			}

			var notification EmailNotification
			if err := json.Unmarshal(payload, &notification); err != nil {
				return nil, errors.Wrap(err, "invalid e-mail notification")
			}
			if notification.Mail == nil || notification.Mail.MessageId == "" {
				return nil, errors.New("e-mail notification has no mail.messageId")
			}

			for _, destination := range notification.Mail.Destination {
				recipient := identity.ParseEmailRecipient(destination, constraints)
				if recipient != nil {
					return &model.BackupResultMeta{
						DeliveryType: model.DeliveryTypeEmail,
						ClientId:     recipient.ClientId,
						ClientKey:    recipient.ClientKey,
						BackupType:   recipient.BackupType,
						BackupId:     notification.Mail.MessageId,
					}, nil
				}
			}
			return nil, errors.Errorf("no valid recipient in %q", notification.Mail.Destination)
		},
	}
}

// HttpPostMetaExtractor accepts notifications of posted backup results.
func HttpPostMetaExtractor() MetaExtractor {
	return MetaExtractor{
		Name: string(model.DeliveryTypeHttpPost),
		Extract: func(payload []byte) (*model.BackupResultMeta, error) {
			fields, err := decodeObject(payload)
			if err != nil {
				return nil, err
			}
			var deliveryType string
			if raw, ok := fields["deliveryType"]; !ok || json.Unmarshal(raw, &deliveryType) != nil {
				return nil, bmerrors.NewPayloadExtractError("Missing or invalid deliveryType")
			}
			if deliveryType != string(model.DeliveryTypeHttpPost) {
				return nil, bmerrors.NewPayloadExtractError("Unexpected deliveryType %q", deliveryType)
			}

			var notification HttpPostNotification
			if err := json.Unmarshal(payload, &notification); err != nil {
				return nil, errors.Wrap(err, "invalid HTTP post notification")
			}
			identifier := identity.ParseBackupResultIdentifier(notification.Identifier, nil)
			if identifier == nil {
				return nil, errors.Errorf("invalid identifier %q", notification.Identifier)
			}
			if notification.BackupId == "" {
				return nil, errors.New("HTTP post notification has no backupId")
			}
			return &model.BackupResultMeta{
				DeliveryType: model.DeliveryTypeHttpPost,
				ClientId:     identifier.ClientId,
				ClientKey:    identifier.ClientKey,
				BackupType:   identifier.BackupType,
				BackupId:     notification.BackupId,
			}, nil
		},
	}
}
