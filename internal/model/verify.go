package model

// VerifyStatus is the outcome of checking a reported identity against the client directory.
type VerifyStatus string

const (
	VerifyNoMatches         VerifyStatus = "NO_MATCHES"
	VerifyInvalidIdentifier VerifyStatus = "INVALID_IDENTIFIER"
	VerifyClientKeyMatched  VerifyStatus = "CLIENT_KEY_MATCHED"
	VerifyClientNotFound    VerifyStatus = "CLIENT_NOT_FOUND"
	VerifyClientKeyMismatch VerifyStatus = "CLIENT_KEY_MISMATCH"
)

type VerifyEmailRecipientsResult struct {
	Status      VerifyStatus
	Matching    []*EmailRecipient
	NonMatching []string
}

type VerifyIdentifierResult struct {
	Status     VerifyStatus
	Identifier *BackupResultIdentifier
}

// ClientMatch is the result of comparing a client key with the stored one.
type ClientMatch string

const (
	ClientNotFound    ClientMatch = "NOT_FOUND"
	ClientMatched     ClientMatch = "MATCH"
	ClientKeyMismatch ClientMatch = "KEY_MISMATCH"
)

// VerifyStatus converts the match into the status reported to receivers.
func (m ClientMatch) VerifyStatus() VerifyStatus {
	switch m {
	case ClientMatched:
		return VerifyClientKeyMatched
	case ClientNotFound:
		return VerifyClientNotFound
	default:
		return VerifyClientKeyMismatch
	}
}
