package services

import (
	"context"
	"fmt"
	"time"

	"loanflow/apperrors"
	"loanflow/models"
	"loanflow/utils"

	"github.com/ttacon/libphonenumber"
)

// PhoneSender sends a text message to an E.164 phone number
type PhoneSender interface {
	SendMessage(ctx context.Context, phone, message string) error
}

// NormalizePhone parses a phone number and returns it in E.164 form
func NormalizePhone(raw, region string) (string, error) {
	num, err := libphonenumber.Parse(raw, region)
	if err != nil {
		return "", apperrors.Validation(fmt.Sprintf("invalid phone number: %v", err))
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", apperrors.Validation("invalid phone number")
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// ChannelDelivery routes OTP codes to the sender of each channel. A nil
// phone sender logs phone codes instead of sending them.
type ChannelDelivery struct {
	email  *EmailService
	phone  PhoneSender
	region string
	ttl    time.Duration
}

// NewChannelDelivery creates a ChannelDelivery
func NewChannelDelivery(email *EmailService, phone PhoneSender, region string, ttl time.Duration) *ChannelDelivery {
	return &ChannelDelivery{email: email, phone: phone, region: region, ttl: ttl}
}

// Deliver implements OTPDelivery
func (d *ChannelDelivery) Deliver(ctx context.Context, ch models.Channel, destination, code string) error {
	switch ch {
	case models.ChannelEmail:
		return d.email.SendOTP(ctx, destination, code, d.ttl)
	case models.ChannelPhone:
		phone, err := NormalizePhone(destination, d.region)
		if err != nil {
			return err
		}
		if d.phone == nil {
			utils.LogInfo("mock whatsapp otp to %s", phone)
			return nil
		}
		msg := fmt.Sprintf("Your verification code is %s. It expires in %d minutes. Do not share it with anyone.",
			code, int(d.ttl.Minutes()))
		return d.phone.SendMessage(ctx, phone, msg)
	}
	return apperrors.ErrInvalidChannel
}
