package models

// VerificationToken records a verification email sent to a user. Token holds the signed
// credential itself; the row exists for resend bookkeeping and revocation.
type VerificationToken struct {
	BaseModel

	Token  string `gorm:"type:varchar(512);uniqueIndex;not null" json:"-"`
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
}
