package interfaces

import (
	"context"

	"github.com/ternarybob/fieldsync/internal/models"
)

// CredentialStore retrieves a user's decrypted external-service
// credentials. Read-only from the core's perspective; encryption at rest
// is the collaborator's concern.
type CredentialStore interface {
	// Retrieve returns the credential for userID, or (nil, nil) when no
	// credential is stored.
	Retrieve(ctx context.Context, userID string) (*models.Credential, error)
}
