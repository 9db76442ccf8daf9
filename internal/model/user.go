package model

import "time"

// User represents an account record as stored in the `users` table.
// Authentication is by email and bcrypt password hash.
type User struct {
	ID           string    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}

// UserProfile carries the public identity of a user inside rooms: the
// display name and the linked wallet address payments are sent to.
// Wallet is nil until a wallet-link request has been signed.
type UserProfile struct {
	ID        string    `json:"id"`         // user_profiles.id
	UserID    string    `json:"user_id"`    // user_profiles.user_id
	Name      string    `json:"name"`       // user_profiles.name
	Wallet    *string   `json:"wallet"`     // user_profiles.wallet (nullable)
	CreatedAt time.Time `json:"created_at"` // user_profiles.created_at
	UpdatedAt time.Time `json:"updated_at"` // user_profiles.updated_at
}

// HasWallet reports whether a non-empty wallet address is linked.
func (p UserProfile) HasWallet() bool { return p.Wallet != nil && *p.Wallet != "" }

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the raw token is stored.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    string     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
