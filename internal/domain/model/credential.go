package model

import "time"

// Credential holds one platform integration's stored secret plus its sync
// configuration and health bookkeeping. Value carries the stored form of the
// secret (vault-tagged ciphertext, or legacy plaintext for rows that predate
// encryption); decryption happens at the application boundary, never here.
type Credential struct {
	ID           string
	Platform     Platform
	Type         CredentialType
	Value        string
	Metadata     map[string]string
	IsValid      bool
	LastUsedAt   *time.Time
	UsageCount   int
	FailureCount int
	LastError    string
	AutoSync     bool
	SyncFreq     SyncFrequency
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Meta returns the metadata value for key, or "" when absent.
func (c *Credential) Meta(key string) string {
	if c.Metadata == nil {
		return ""
	}
	return c.Metadata[key]
}
