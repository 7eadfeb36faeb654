package ingester

import (
	"crypto/subtle"

	"github.com/pkg/errors"

	"github.com/backupmon/backupmon/internal/common/bmcontext"
	"github.com/backupmon/backupmon/internal/model"
)

var verifyAttributes = []model.ClientAttribute{model.ClientAttributeId, model.ClientAttributeKey}

// VerifyClient compares clientKey with the key stored for clientId. The client record is read on every call.
func VerifyClient(ctx *bmcontext.Context, clients ClientDirectory, clientId string, clientKey string) (model.ClientMatch, error) {
	client, err := clients.GetClient(ctx, clientId, verifyAttributes)
	if err != nil {
		return "", errors.WithMessagef(err, "error fetching client %s", clientId)
	}
	if client == nil {
		return model.ClientNotFound, nil
	}
	if subtle.ConstantTimeCompare([]byte(client.ClientKey), []byte(clientKey)) != 1 {
		return model.ClientKeyMismatch, nil
	}
	return model.ClientMatched, nil
}
