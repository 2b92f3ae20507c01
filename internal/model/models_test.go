package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPartyEmail(t *testing.T) {
	a := &Agreement{
		TenantEmail:   "tenant@example.com",
		LandlordEmail: "landlord@example.com",
	}
	assert.Equal(t, "tenant@example.com", a.PartyEmail(UserTypeTenant))
	assert.Equal(t, "landlord@example.com", a.PartyEmail(UserTypeLandlord))
}

func TestFullyVerified(t *testing.T) {
	a := &Agreement{}
	assert.False(t, a.FullyVerified())

	a.TenantVerified = true
	assert.False(t, a.FullyVerified())

	a.LandlordVerified = true
	assert.True(t, a.FullyVerified())
}

func TestOtpExpired(t *testing.T) {
	now := time.Now().UTC()
	otp := &OtpVerification{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, otp.Expired(now))
	assert.False(t, otp.Expired(otp.ExpiresAt))
	assert.True(t, otp.Expired(now.Add(2*time.Minute)))
}
