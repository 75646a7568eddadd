package apperrors

var (
	ErrEmailTaken = &DomainError{
		Kind:    KindPrecondition,
		Code:    "EMAIL_TAKEN",
		Message: "email already registered",
	}
	ErrInvalidCredentials = &DomainError{
		Kind:    KindUnauthorized,
		Code:    "INVALID_CREDENTIALS",
		Message: "invalid credentials",
	}
	ErrApplicantNotFound = &DomainError{
		Kind:    KindNotFound,
		Code:    "APPLICANT_NOT_FOUND",
		Message: "applicant not found",
	}
	ErrUnknownSession = &DomainError{
		Kind:    KindNotFound,
		Code:    "UNKNOWN_SESSION",
		Message: "chat session not found",
	}
	ErrInvalidDocType = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_DOC_TYPE",
		Message: "doc_type must be one of salary_slip, aadhaar, pan, bank_statement, other",
	}
	ErrInvalidFileType = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_FILE_TYPE",
		Message: "invalid file type, allowed types: pdf, png, jpg, jpeg",
	}
	ErrFileTooLarge = &DomainError{
		Kind:    KindValidation,
		Code:    "FILE_TOO_LARGE",
		Message: "file size exceeds 10MB limit",
	}
	ErrCollaboratorUnavailable = &DomainError{
		Kind:    KindCollaborator,
		Code:    "COLLABORATOR_UNAVAILABLE",
		Message: "an external service is temporarily unavailable",
	}
)
