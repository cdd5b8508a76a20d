package domain

import "time"

// Account is a patient, doctor or admin login record.
type Account struct {
	ID           int64
	Role         Role
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity returns the credential identity for the account.
func (a *Account) Identity() Identity {
	return Identity{SubjectID: a.ID, Role: a.Role}
}
