package identity

import (
	"strings"

	"github.com/backupmon/backupmon/internal/model"
)

// IdentifierConstraints restricts which identifiers are accepted. Empty fields are not checked.
type IdentifierConstraints struct {
	BackupType string
	ClientId   string
	ClientKey  string
}

// RecipientConstraints restricts which e-mail recipients are accepted. Empty fields are not checked.
type RecipientConstraints struct {
	IdentifierConstraints
	Prefix string
	Domain string
}

// ParseBackupResultIdentifier parses a "<backupType>.<clientId>.<clientKey>" triplet, returning nil if raw is not
// exactly three valid components or does not satisfy constraints.
func ParseBackupResultIdentifier(raw string, constraints *IdentifierConstraints) *model.BackupResultIdentifier {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil
	}
	backupType, clientId, clientKey := parts[0], parts[1], parts[2]

	if !IsValidBackupType(backupType) || !IsValidClientId(clientId) || !IsValidClientKey(clientKey) {
		return nil
	}

	if constraints != nil {
		if constraints.BackupType != "" && constraints.BackupType != backupType {
			return nil
		}
		if constraints.ClientId != "" && constraints.ClientId != clientId {
			return nil
		}
		if constraints.ClientKey != "" && constraints.ClientKey != clientKey {
			return nil
		}
	}

	return &model.BackupResultIdentifier{
		Original:   raw,
		BackupType: backupType,
		ClientId:   clientId,
		ClientKey:  clientKey,
	}
}

// ParseEmailRecipient parses an address of the form "<prefix>+<identifier>@<domain>", returning nil if the address
// is malformed, the identifier is invalid, or constraints are not satisfied.
func ParseEmailRecipient(address string, constraints *RecipientConstraints) *model.EmailRecipient {
	if strings.Count(address, "@") != 1 {
		return nil
	}
	local, domain, _ := strings.Cut(address, "@")

	if strings.Count(local, "+") != 1 {
		return nil
	}
	prefix, suffix, _ := strings.Cut(local, "+")

	var identifierConstraints *IdentifierConstraints
	if constraints != nil {
		identifierConstraints = &constraints.IdentifierConstraints
	}
	identifier := ParseBackupResultIdentifier(suffix, identifierConstraints)
	if identifier == nil {
		return nil
	}

	if constraints != nil {
		if constraints.Prefix != "" && constraints.Prefix != prefix {
			return nil
		}
		if constraints.Domain != "" && constraints.Domain != domain {
			return nil
		}
	}

	identifier.Original = address
	return &model.EmailRecipient{
		BackupResultIdentifier: *identifier,
		Prefix:                 prefix,
		Domain:                 domain,
	}
}

// ParseEmailRecipients returns the recipients that parse successfully, in their original order.
func ParseEmailRecipients(addresses []string, constraints *RecipientConstraints) []*model.EmailRecipient {
	var recipients []*model.EmailRecipient
	for _, address := range addresses {
		if recipient := ParseEmailRecipient(address, constraints); recipient != nil {
			recipients = append(recipients, recipient)
		}
	}
	return recipients
}
