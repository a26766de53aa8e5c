package model

import "time"

// OTP purposes.
const (
	PurposeEmailVerification = "email_verification"
	PurposePasswordReset     = "password_reset"
)

// OTPCode is a short-lived numeric code emailed to an identity. A code is
// consumed (deleted) on its first successful validation.
type OTPCode struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	Purpose   string    `json:"purpose"`
	CreatedAt time.Time `json:"created_at"`
}
