package models

import (
	"strings"

	"gorm.io/gorm"
)

// User is a locally registered account. Username and email are unique regardless of case;
// the normalised columns carry the unique indexes.
type User struct {
	BaseModel

	Username           string `gorm:"not null" json:"username"`
	NormalizedUsername string `gorm:"uniqueIndex;not null" json:"-"`
	Email              string `gorm:"not null" json:"email"`
	NormalizedEmail    string `gorm:"uniqueIndex;not null" json:"-"`
	Password           string `gorm:"not null" json:"-"`

	FirstName string `gorm:"not null" json:"first_name"`
	LastName  string `gorm:"not null" json:"last_name"`

	EmailVerified bool `gorm:"not null;default:false" json:"email_verified"`

	// VerificationTokens is ordered oldest first. It is only populated when loaded explicitly.
	VerificationTokens []VerificationToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// BeforeSave keeps the normalised lookup columns in sync with the display values.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.NormalizedUsername = NormalizeKey(u.Username)
	u.NormalizedEmail = NormalizeKey(u.Email)
	return nil
}

// LatestVerificationToken returns the most recently attached token, or nil.
func (u *User) LatestVerificationToken() *VerificationToken {
	if u == nil || len(u.VerificationTokens) == 0 {
		return nil
	}
	return &u.VerificationTokens[len(u.VerificationTokens)-1]
}

// NormalizeKey folds a username or email into its case-insensitive lookup form.
func NormalizeKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
