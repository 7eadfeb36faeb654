package clientdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backupmon/backupmon/internal/common/bmerrors"
	"github.com/backupmon/backupmon/internal/model"
)

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT a FROM b WHERE c = $1 AND d = $2", rebind("SELECT a FROM b WHERE c = ? AND d = ?"))
	assert.Equal(t, "SELECT 1", rebind("SELECT 1"))
}

func TestClientColumns(t *testing.T) {
	attributes, columns, err := clientColumns(nil)
	require.NoError(t, err)
	assert.Equal(t, allAttributes, attributes)
	assert.Equal(t, "client_id, client_key, created_at", columns)

	_, columns, err = clientColumns([]model.ClientAttribute{model.ClientAttributeKey})
	require.NoError(t, err)
	assert.Equal(t, "client_key", columns)

	_, _, err = clientColumns([]model.ClientAttribute{"password"})
	var invalid *bmerrors.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalid)
}

func TestValidateNewClient(t *testing.T) {
	assert.NoError(t, validateNewClient("client1", "s3cr3t"))
	assert.Error(t, validateNewClient("c1", "s3cr3t"))
	assert.Error(t, validateNewClient("client1", "not-a-key"))
}
