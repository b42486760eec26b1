package models

import (
	"time"
)

// OTP purposes. A record is scoped to exactly one purpose.
const (
	OTPPurposeSignup = "signup"
	OTPPurposeReset  = "reset"
)

const (
	// OTPMaxAttempts bounds verification checks per record, counting the
	// successful check for reset-purpose codes.
	OTPMaxAttempts = 3

	// OTPTTL is the validity window measured from creation. The bound is
	// strict: a record exactly OTPTTL old is already expired.
	OTPTTL = 5 * time.Minute
)

// OTP is a one-time 6-digit passcode tied to an (email, purpose) pair.
// At most one live record exists per pair; issuing supersedes.
type OTP struct {
	ID        string
	Email     string // lowercase
	Code      string // 6 numeric digits
	Purpose   string // "signup" or "reset"
	IssuerIP  string
	Attempts  int
	Verified  bool
	CreatedAt time.Time
}

// IsExpired reports whether the record's time window has closed.
func (o *OTP) IsExpired(now time.Time) bool {
	return now.Sub(o.CreatedAt) >= OTPTTL
}

// IsExhausted reports whether the attempt budget has been spent.
func (o *OTP) IsExhausted() bool {
	return o.Attempts >= OTPMaxAttempts
}

// IsLive reports whether the record can still be checked: inside the time
// window and under the attempt budget.
func (o *OTP) IsLive(now time.Time) bool {
	return !o.IsExpired(now) && !o.IsExhausted()
}
