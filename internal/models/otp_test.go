package models

import (
	"testing"
	"time"
)

func TestOTP_IsExpired_StrictBound(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	otp := OTP{CreatedAt: created}

	if otp.IsExpired(created.Add(OTPTTL - time.Second)) {
		t.Error("one second before the bound must still be live")
	}
	// Exactly five minutes old is already dead.
	if !otp.IsExpired(created.Add(OTPTTL)) {
		t.Error("exactly at the bound must be expired")
	}
	if !otp.IsExpired(created.Add(OTPTTL + time.Second)) {
		t.Error("past the bound must be expired")
	}
}

func TestOTP_IsExhausted(t *testing.T) {
	under := OTP{Attempts: OTPMaxAttempts - 1}
	if under.IsExhausted() {
		t.Error("attempts below the budget must not be exhausted")
	}

	spent := OTP{Attempts: OTPMaxAttempts}
	if !spent.IsExhausted() {
		t.Error("attempts at the budget must be exhausted")
	}
}

func TestOTP_IsLive(t *testing.T) {
	now := time.Now()
	live := OTP{CreatedAt: now.Add(-time.Minute), Attempts: 1}
	if !live.IsLive(now) {
		t.Error("fresh record with remaining budget must be live")
	}

	expired := OTP{CreatedAt: now.Add(-OTPTTL), Attempts: 0}
	if expired.IsLive(now) {
		t.Error("expired record must not be live")
	}

	exhausted := OTP{CreatedAt: now.Add(-time.Minute), Attempts: OTPMaxAttempts}
	if exhausted.IsLive(now) {
		t.Error("exhausted record must not be live")
	}
}

func TestUser_IsLocked(t *testing.T) {
	now := time.Now()

	unlocked := User{}
	if unlocked.IsLocked(now) {
		t.Error("user without a block must not be locked")
	}

	future := now.Add(10 * time.Minute)
	locked := User{BlockExpires: &future}
	if !locked.IsLocked(now) {
		t.Error("user inside the window must be locked")
	}

	past := now.Add(-time.Minute)
	lapsed := User{BlockExpires: &past}
	if lapsed.IsLocked(now) {
		t.Error("user past the window must not be locked")
	}
}

func TestAccountLockedError_MinutesRoundsUp(t *testing.T) {
	e := &AccountLockedError{RetryAfter: 61 * time.Second}
	if got := e.Minutes(); got != 2 {
		t.Errorf("Minutes() = %d, want 2", got)
	}

	e = &AccountLockedError{RetryAfter: time.Second}
	if got := e.Minutes(); got != 1 {
		t.Errorf("Minutes() = %d, want 1", got)
	}
}

func TestRateLimitError_SecondsRoundsUp(t *testing.T) {
	e := &RateLimitError{RetryAfter: 1500 * time.Millisecond}
	if got := e.Seconds(); got != 2 {
		t.Errorf("Seconds() = %d, want 2", got)
	}
}
