package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidBackupType(t *testing.T) {
	tests := map[string]bool{
		"arq":          true,
		"ab":           true,
		"a1":           true,
		"my-type_2":    true,
		"abcdefghijk":  true,
		"abcdefghijkl": false,
		"a":            false,
		"":             false,
		"1arq":         false,
		"-arq":         false,
		"arq-":         false,
		"arq_":         false,
		"Arq":          false,
		"ar.q":         false,
	}
	for input, expected := range tests {
		assert.Equal(t, expected, IsValidBackupType(input), "backup type %q", input)
	}
}

func TestIsValidClientId(t *testing.T) {
	tests := map[string]bool{
		"abcd":                  true,
		"Client_01":             true,
		"client-01":             true,
		"0abc":                  true,
		"abc":                   false,
		"":                      false,
		"_abcd":                 false,
		"abcd-":                 false,
		"ab.cd":                 false,
		strings.Repeat("a", 51): true,
		strings.Repeat("a", 52): false,
	}
	for input, expected := range tests {
		assert.Equal(t, expected, IsValidClientId(input), "client id %q", input)
	}
}

func TestIsValidClientKey(t *testing.T) {
	tests := map[string]bool{
		"abc":                   true,
		"AbC123":                true,
		"ab":                    false,
		"ab-c":                  false,
		"ab_c":                  false,
		"":                      false,
		strings.Repeat("k", 50): true,
		strings.Repeat("k", 51): false,
	}
	for input, expected := range tests {
		assert.Equal(t, expected, IsValidClientKey(input), "client key %q", input)
	}
}
