package models

import "time"

// Channel is a contact channel an OTP can be delivered to
type Channel string

const (
	ChannelPhone Channel = "phone"
	ChannelEmail Channel = "email"
)

// Valid reports whether the channel is supported
func (c Channel) Valid() bool {
	return c == ChannelPhone || c == ChannelEmail
}

// ChannelState is the verification state of one channel
type ChannelState string

const (
	ChannelUnverified ChannelState = "unverified"
	ChannelOTPSent    ChannelState = "otp_sent"
	ChannelVerified   ChannelState = "verified"
)

// OTPChallenge is one issued one-time password. Challenges are never
// overwritten: a resend marks the previous one superseded.
type OTPChallenge struct {
	ID           string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ApplicantID  uint       `gorm:"not null;index:idx_otp_applicant_channel" json:"applicant_id"`
	Channel      Channel    `gorm:"type:varchar(10);not null;index:idx_otp_applicant_channel" json:"channel"`
	CodeHash     string     `gorm:"column:code_hash;not null;size:128" json:"-"`
	IssuedAt     time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	Consumed     bool       `gorm:"not null;default:false" json:"consumed"`
	ConsumedAt   *time.Time `json:"consumed_at,omitempty"`
	SupersededAt *time.Time `json:"superseded_at,omitempty"`
	ExpiredAt    *time.Time `json:"expired_at,omitempty"`
}

func (OTPChallenge) TableName() string {
	return "otp_challenges"
}

// Pending reports whether the challenge may still be verified against,
// ignoring its expiry time.
func (c *OTPChallenge) Pending() bool {
	return !c.Consumed && c.SupersededAt == nil && c.ExpiredAt == nil
}

// IsExpired reports whether now is past the expiry time
func (c *OTPChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
