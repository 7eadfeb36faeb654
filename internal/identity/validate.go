// Package identity parses and validates the identities backup agents report results under.
//
// An identifier is a "<backupType>.<clientId>.<clientKey>" triplet. Agents that report by e-mail carry the
// identifier in the "+suffix" of the recipient address, e.g. backups+arq.client1.s3cr3t@example.com.
package identity

import "regexp"

var (
	backupTypeRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,9}[a-z0-9]$`)
	clientIdRegex   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{2,49}[A-Za-z0-9]$`)
	clientKeyRegex  = regexp.MustCompile(`^[A-Za-z0-9]{3,50}$`)
)

// IsValidBackupType reports whether s is 2-11 lowercase letters, digits, hyphens or underscores, starting with a
// letter and ending with a letter or digit.
func IsValidBackupType(s string) bool {
	return backupTypeRegex.MatchString(s)
}

// IsValidClientId reports whether s is 4-51 letters, digits, hyphens or underscores, starting and ending with a
// letter or digit.
func IsValidClientId(s string) bool {
	return clientIdRegex.MatchString(s)
}

// IsValidClientKey reports whether s is 3-50 letters or digits.
func IsValidClientKey(s string) bool {
	return clientKeyRegex.MatchString(s)
}
