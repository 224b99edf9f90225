package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is the persisted identity record. Password, refresh token and the
// single-use token digests never leave the server: json tags hide them, so an
// Account marshaled into a response body is already the sanitized view.
type Account struct {
	ID              string `bson:"_id" json:"id"`
	Username        string `bson:"username" json:"username"`
	Email           string `bson:"email" json:"email"`
	HashedPassword  string `bson:"password" json:"-"`
	Role            string `bson:"role" json:"role"`
	IsEmailVerified bool   `bson:"isEmailVerified" json:"isEmailVerified"`

	RefreshToken string `bson:"refreshToken,omitempty" json:"-"`

	// Single-use token digests (sha256 hex) with their deadlines. Cleared on
	// successful use; a lookup never matches past the expiry.
	EmailVerificationToken  string    `bson:"emailVerificationToken,omitempty" json:"-"`
	EmailVerificationExpiry time.Time `bson:"emailVerificationExpiry,omitempty" json:"-"`
	ForgotPasswordToken     string    `bson:"forgotPasswordToken,omitempty" json:"-"`
	ForgotPasswordExpiry    time.Time `bson:"forgotPasswordExpiry,omitempty" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}
