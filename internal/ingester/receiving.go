package ingester

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/identity"
	"github.com/backupmon/backupmon/internal/ingester/configuration"
	"github.com/backupmon/backupmon/internal/ingester/metrics"
	"github.com/backupmon/backupmon/internal/model"
)

// ReceivingService verifies and stores backup results as they arrive, and queues them for ingestion.
type ReceivingService struct {
	queue       QueueBackend
	store       ContentStore
	clients     ClientDirectory
	constraints *identity.RecipientConstraints
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewReceivingService(
	queue QueueBackend,
	store ContentStore,
	clients ClientDirectory,
	config configuration.ReceivingConfig,
	m *metrics.Metrics,
) *ReceivingService {
	if m == nil {
		m = metrics.NewMetrics(metrics.MetricsPrefix, prometheus.NewRegistry())
	}
	return &ReceivingService{
		queue:       queue,
		store:       store,
		clients:     clients,
		constraints: recipientConstraints(config),
		metrics:     m,
		now:         time.Now,
	}
}

// VerifyEmailRecipients splits recipients into those addressed to a client and the rest, then verifies the
// client of the first matching recipient.
func (s *ReceivingService) VerifyEmailRecipients(ctx *bmcontext.Context, recipients []string) (*model.VerifyEmailRecipientsResult, error) {
	result := &model.VerifyEmailRecipientsResult{
		Matching:    []*model.EmailRecipient{},
		NonMatching: []string{},
	}
	for _, recipient := range recipients {
		if parsed := identity.ParseEmailRecipient(recipient, s.constraints); parsed != nil {
			result.Matching = append(result.Matching, parsed)
		} else {
			result.NonMatching = append(result.NonMatching, recipient)
		}
	}

	if len(result.Matching) == 0 {
		result.Status = model.VerifyNoMatches
		return result, nil
	}

	match, err := VerifyClient(ctx, s.clients, result.Matching[0].ClientId, result.Matching[0].ClientKey)
	if err != nil {
		return nil, err
	}
	result.Status = match.VerifyStatus()
	return result, nil
}

// VerifyBackupResultIdentifier parses a "<backupType>.<clientId>.<clientKey>" identifier and verifies its client.
func (s *ReceivingService) VerifyBackupResultIdentifier(ctx *bmcontext.Context, identifier string) (*model.VerifyIdentifierResult, error) {
	parsed := identity.ParseBackupResultIdentifier(identifier, nil)
	if parsed == nil {
		return &model.VerifyIdentifierResult{Status: model.VerifyInvalidIdentifier}, nil
	}

	match, err := VerifyClient(ctx, s.clients, parsed.ClientId, parsed.ClientKey)
	if err != nil {
		return nil, err
	}
	return &model.VerifyIdentifierResult{Status: match.VerifyStatus(), Identifier: parsed}, nil
}

// ReceiveBackupResult stores a posted body in a content envelope and queues it for ingestion.
// Binary bodies are stored base64 encoded.
func (s *ReceivingService) ReceiveBackupResult(
	ctx *bmcontext.Context,
	identifier *model.BackupResultIdentifier,
	backupId string,
	body []byte,
	isBinary bool,
) error {
	envelope := model.ContentEnvelope{
		Type:         model.ContentEnvelopeType,
		ReceivedDate: model.FormatIso(s.now()),
		Identifier:   identifier,
		IsBase64:     isBinary,
		Body:         string(body),
	}
	if isBinary {
		envelope.Body = base64.StdEncoding.EncodeToString(body)
	}
	content, err := json.Marshal(envelope)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := s.store.PutBackupResultContent(ctx, model.DeliveryTypeHttpPost, backupId, content); err != nil {
		return errors.WithMessagef(err, "error storing backup %s", backupId)
	}

	payload, err := NewHttpPostNotificationPayload(identifier.Original, backupId)
	if err != nil {
		return err
	}
	if err := s.queue.QueueReceivedBackupResult(ctx, payload); err != nil {
		return errors.WithMessagef(err, "error queueing backup %s", backupId)
	}
	s.metrics.RecordReceived(model.DeliveryTypeHttpPost, model.VerifyClientKeyMatched)
	return nil
}

// ReceiveEmail verifies the recipients of a raw e-mail and, when the client key matches, stores the e-mail
// and queues it for ingestion. The verification result is returned either way.
func (s *ReceivingService) ReceiveEmail(
	ctx *bmcontext.Context,
	messageId string,
	recipients []string,
	content []byte,
) (*model.VerifyEmailRecipientsResult, error) {
	result, err := s.VerifyEmailRecipients(ctx, recipients)
	if err != nil {
		return nil, err
	}
	if result.Status != model.VerifyClientKeyMatched {
		s.metrics.RecordReceived(model.DeliveryTypeEmail, result.Status)
		return result, nil
	}

	if err := s.store.PutBackupResultContent(ctx, model.DeliveryTypeEmail, messageId, content); err != nil {
		return nil, errors.WithMessagef(err, "error storing e-mail %s", messageId)
	}

	payload, err := NewEmailNotificationPayload(messageId, recipients)
	if err != nil {
		return nil, err
	}
	if err := s.queue.QueueReceivedBackupResult(ctx, payload); err != nil {
		return nil, errors.WithMessagef(err, "error queueing e-mail %s", messageId)
	}
	s.metrics.RecordReceived(model.DeliveryTypeEmail, result.Status)
	return result, nil
}
