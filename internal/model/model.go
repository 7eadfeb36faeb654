package model

import (
	"encoding/json"
	"time"
)

// DeliveryType is the transport a backup agent used to report a result.
type DeliveryType string

const (
	DeliveryTypeEmail    DeliveryType = "email"
	DeliveryTypeHttpPost DeliveryType = "httppost"
)

// DeliveryTypes lists every delivery type a content store may hold content for.
var DeliveryTypes = []DeliveryType{DeliveryTypeEmail, DeliveryTypeHttpPost}

// IsoMilli matches the precision of ISO-8601 timestamps emitted by the receiving side.
const IsoMilli = "2006-01-02T15:04:05.000Z07:00"

// BackupResultIdentifier is the parsed form of a "<backupType>.<clientId>.<clientKey>" triplet.
// Values are only ever created by identity.ParseBackupResultIdentifier, so every component is valid.
type BackupResultIdentifier struct {
	Original   string `json:"original"`
	BackupType string `json:"backupType"`
	ClientId   string `json:"clientId"`
	ClientKey  string `json:"clientKey"`
}

// EmailRecipient is an identifier carried in the "+suffix" of an e-mail address.
type EmailRecipient struct {
	BackupResultIdentifier
	Prefix string `json:"prefix"`
	Domain string `json:"domain"`
}

// BackupResultMeta identifies which stored content belongs to which client and how it arrived.
type BackupResultMeta struct {
	DeliveryType DeliveryType `json:"deliveryType"`
	ClientId     string       `json:"clientId"`
	ClientKey    string       `json:"clientKey"`
	BackupType   string       `json:"backupType"`
	BackupId     string       `json:"backupId"`
}

// BackupResultMetrics are the normalised metrics of one backup result, whatever format they were reported in.
type BackupResultMetrics struct {
	BackupDate    time.Time
	Duration      int64 // milliseconds
	TotalItems    int64
	TotalBytes    int64
	ErrorCount    int64
	ErrorMessages []string
}

type backupResultMetricsJson struct {
	BackupDate    string   `json:"backupDate"`
	Duration      int64    `json:"duration"`
	TotalItems    int64    `json:"totalItems"`
	TotalBytes    int64    `json:"totalBytes"`
	ErrorCount    int64    `json:"errorCount"`
	ErrorMessages []string `json:"errorMessages,omitempty"`
}

func (m BackupResultMetrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(backupResultMetricsJson{
		BackupDate:    FormatIso(m.BackupDate),
		Duration:      m.Duration,
		TotalItems:    m.TotalItems,
		TotalBytes:    m.TotalBytes,
		ErrorCount:    m.ErrorCount,
		ErrorMessages: m.ErrorMessages,
	})
}

// OrphanedBackupResultContent is stored content that is older than a threshold and was never ingested.
type OrphanedBackupResultContent struct {
	DeliveryType DeliveryType
	BackupId     string
	CreateDate   time.Time
}

// ClientRecord is a client as held by the client directory. Fields not requested are left empty.
type ClientRecord struct {
	ClientId  string
	ClientKey string
	CreatedAt time.Time
}

// ContentEnvelope wraps the body of a backup result received over HTTP before it is stored.
type ContentEnvelope struct {
	Type         string                  `json:"type"`
	ReceivedDate string                  `json:"receivedDate"`
	Identifier   *BackupResultIdentifier `json:"identifier"`
	IsBase64     bool                    `json:"isBase64"`
	Body         string                  `json:"body"`
}

const ContentEnvelopeType = "BackupResult"

// FormatIso renders t in UTC with millisecond precision.
func FormatIso(t time.Time) string {
	return t.UTC().Format(IsoMilli)
}

// QueueMessage is a message dequeued from the received backup results queue.
// ReceiveCount is the number of times the message has been handed to a worker, including this one.
type QueueMessage struct {
	Id           string
	Body         []byte
	ReceiveCount int64
}

// ClientAttribute names a field of a client record that a lookup may be restricted to.
type ClientAttribute string

const (
	ClientAttributeId        ClientAttribute = "clientId"
	ClientAttributeKey       ClientAttribute = "clientKey"
	ClientAttributeCreatedAt ClientAttribute = "createdAt"
)
