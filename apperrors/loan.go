package apperrors

var (
	ErrInvalidAmount = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_AMOUNT",
		Message: "loan amount must be greater than zero",
	}
	ErrInvalidTenure = &DomainError{
		Kind:    KindValidation,
		Code:    "INVALID_TENURE",
		Message: "tenure must be at least one month",
	}
	ErrUnknownLoan = &DomainError{
		Kind:    KindPrecondition,
		Code:    "UNKNOWN_LOAN",
		Message: "loan application not found for this applicant",
	}
	ErrAlreadyFinalized = &DomainError{
		Kind:    KindPrecondition,
		Code:    "ALREADY_FINALIZED",
		Message: "loan application already has a final decision",
	}
	ErrLoanNotApproved = &DomainError{
		Kind:    KindPrecondition,
		Code:    "LOAN_NOT_APPROVED",
		Message: "sanction letter is only available for approved loans",
	}
	ErrIncomeRequired = &DomainError{
		Kind:    KindPrecondition,
		Code:    "INCOME_REQUIRED",
		Message: "please update your financial profile first",
	}
)
