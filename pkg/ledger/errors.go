package ledger

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies ledger failures for callers that translate them to a transport.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidRequest
	KindConflict
	KindPreconditionFailed
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidRequest:
		return "invalid_request"
	case KindConflict:
		return "conflict"
	case KindPreconditionFailed:
		return "precondition_failed"
	default:
		return "internal"
	}
}

// Error is a typed ledger failure. Two Errors match under errors.Is when
// their codes are equal, so callers can compare against the sentinels below
// even when the message was specialized.
type Error struct {
	Kind    Kind
	Code    string
	Field   string // offending request field, if any
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// withf returns a copy of e with a formatted message.
func (e *Error) withf(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

var (
	ErrStudentNotFound     = &Error{Kind: KindNotFound, Code: "student_not_found", Message: "student not found"}
	ErrPlanNotFound        = &Error{Kind: KindNotFound, Code: "plan_not_found", Message: "plan not found"}
	ErrInstallmentNotFound = &Error{Kind: KindNotFound, Code: "installment_not_found", Message: "installment not found"}
	ErrPaymentNotFound     = &Error{Kind: KindNotFound, Code: "payment_not_found", Message: "payment not found"}

	ErrInstallmentRequired = &Error{Kind: KindInvalidRequest, Code: "installment_required", Field: "installment_id",
		Message: "installment_id is required for installment payments unless advance is set"}
	ErrInstallmentNotAllowed = &Error{Kind: KindInvalidRequest, Code: "installment_not_allowed", Field: "installment_id",
		Message: "installment_id must be empty for adjustments"}
	ErrInvalidRate = &Error{Kind: KindInvalidRequest, Code: "invalid_rate", Field: "rate",
		Message: "rate must be zero or greater"}

	ErrAlreadyCancelled      = &Error{Kind: KindConflict, Code: "already_cancelled", Message: "payment is already cancelled"}
	ErrInstallmentNotPayable = &Error{Kind: KindConflict, Code: "installment_not_payable", Message: "installment is not pending or overdue"}
	ErrPlanInactive          = &Error{Kind: KindConflict, Code: "plan_inactive", Message: "plan is not active"}
	ErrScheduleExists        = &Error{Kind: KindConflict, Code: "schedule_exists", Message: "installment schedule already exists"}

	ErrNoScheduleBase = &Error{Kind: KindPreconditionFailed, Code: "no_schedule_base",
		Message: "student has no installment to advance from"}
)

// FieldError describes one invalid request field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError reports every invalid field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Error)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// KindOf classifies err. Errors that are neither *Error nor *ValidationError are internal.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return KindInvalidRequest
	}
	return KindInternal
}
