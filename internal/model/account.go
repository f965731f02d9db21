// Package model defines the data structures shared across the application.
package model

import "time"

// Account is a locally registered login.
//
// The catalog keeps the authoritative profile (fullname, about, email); the
// local row only carries what the catalog cannot: the bcrypt password hash
// used for signing in, and the link to the catalog user record. Username is
// duplicated from the catalog because it is the login key and must be
// resolvable without a network round trip.
type Account struct {
	ID           string    `json:"id"        db:"id"`
	Username     string    `json:"username"  db:"username"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CatalogID    string    `json:"catalogId" db:"catalog_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}
