package apperrors

var (
	ErrInvalidChannel = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_CHANNEL",
		Message: "channel must be phone or email",
	}
	ErrAlreadyVerified = &DomainError{
		Kind:    KindPrecondition,
		Code:    "ALREADY_VERIFIED",
		Message: "channel is already verified",
	}
	ErrNoActiveChallenge = &DomainError{
		Kind:    KindPrecondition,
		Code:    "NO_ACTIVE_CHALLENGE",
		Message: "no OTP is pending for this channel, request a new one",
	}
	ErrOTPExpired = &DomainError{
		Kind:    KindExpired,
		Code:    "OTP_EXPIRED",
		Message: "OTP has expired, please request a new one",
	}
	ErrCodeMismatch = &DomainError{
		Kind:    KindValidation,
		Code:    "CODE_MISMATCH",
		Message: "OTP does not match",
	}
	ErrOTPThrottled = &DomainError{
		Kind:    KindPrecondition,
		Code:    "OTP_THROTTLED",
		Message: "too many OTP requests, try again later",
	}
)
