package sqlite

import (
	"context"
	"database/sql"

	"github.com/ternarybob/fieldsync/internal/models"
)

// CredentialStorage reads portal credentials. Provisioning and rotation
// happen out of band; this process only ever reads.
type CredentialStorage struct {
	db *sql.DB
}

// NewCredentialStorage creates a credential storage backed by db.
func NewCredentialStorage(db *sql.DB) *CredentialStorage {
	return &CredentialStorage{db: db}
}

// Retrieve returns the credential for userID, or nil when none is
// provisioned.
func (s *CredentialStorage) Retrieve(ctx context.Context, userID string) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, service, username, password, valid, last_verified
		FROM portal_credentials WHERE user_id = ?`, userID)

	var (
		cred         models.Credential
		valid        int
		lastVerified sql.NullInt64
	)
	err := row.Scan(&cred.UserID, &cred.Service, &cred.Username,
		&cred.Password, &valid, &lastVerified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewPersistenceError("retrieve credential", err)
	}

	cred.Valid = valid == 1
	cred.LastVerified = fromNullUnix(lastVerified)
	return &cred, nil
}
