package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the machine-readable class of a checkout failure.
type ErrorKind string

const (
	KindValidation            ErrorKind = "validation_error"
	KindNotFound              ErrorKind = "not_found"
	KindStateConflict         ErrorKind = "state_conflict"
	KindProviderUnavailable   ErrorKind = "provider_unavailable"
	KindInvalidSignature      ErrorKind = "invalid_signature"
	KindAuthorizationRejected ErrorKind = "authorization_rejected"
	KindOrderCreationFailed   ErrorKind = "order_creation_failed"
)

// Error carries a stable code and kind plus a message that is safe to show to a client.
// Err holds the underlying cause and is never serialized.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so that detailed copies still match their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Withf returns a copy of e with a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

var (
	ErrCartNotFound          = &Error{Kind: KindNotFound, Code: "cart_not_found", Message: "cart not found"}
	ErrRegionNotFound        = &Error{Kind: KindValidation, Code: "region_not_found", Message: "region not found"}
	ErrVariantNotFound       = &Error{Kind: KindValidation, Code: "variant_not_found", Message: "variant not found"}
	ErrInvalidQuantity       = &Error{Kind: KindValidation, Code: "invalid_quantity", Message: "quantity must be positive"}
	ErrAddressInvalid        = &Error{Kind: KindValidation, Code: "address_invalid", Message: "address is incomplete"}
	ErrEmailInvalid          = &Error{Kind: KindValidation, Code: "email_invalid", Message: "email is invalid"}
	ErrCartEmpty             = &Error{Kind: KindValidation, Code: "cart_empty", Message: "cart has no line items"}
	ErrShippingOptionInvalid = &Error{Kind: KindValidation, Code: "shipping_option_invalid", Message: "shipping option is not valid for this cart"}
	ErrPromotionInvalid      = &Error{Kind: KindValidation, Code: "promotion_invalid", Message: "promotion code is invalid or expired"}
	ErrProviderNotFound      = &Error{Kind: KindValidation, Code: "provider_not_found", Message: "payment provider not found"}
	ErrInvalidProof          = &Error{Kind: KindValidation, Code: "invalid_proof", Message: "payment proof is missing required fields"}

	ErrCartCompleted        = &Error{Kind: KindStateConflict, Code: "cart_completed", Message: "cart is already completed"}
	ErrCheckoutIncomplete   = &Error{Kind: KindStateConflict, Code: "checkout_incomplete", Message: "checkout is incomplete"}
	ErrPaymentNotAuthorized = &Error{Kind: KindStateConflict, Code: "payment_not_authorized", Message: "payment has not been authorized"}
	ErrSessionNotActive     = &Error{Kind: KindStateConflict, Code: "session_not_active", Message: "payment session is no longer active"}

	ErrSessionNotFound = &Error{Kind: KindNotFound, Code: "session_not_found", Message: "payment session not found"}
	ErrOrderNotFound   = &Error{Kind: KindNotFound, Code: "order_not_found", Message: "order not found"}

	ErrProviderUnavailable   = &Error{Kind: KindProviderUnavailable, Code: "provider_unavailable", Message: "payment provider is unavailable"}
	ErrProviderMisconfigured = &Error{Kind: KindProviderUnavailable, Code: "provider_misconfigured", Message: "payment provider is not configured"}
	ErrInvalidSignature      = &Error{Kind: KindInvalidSignature, Code: "invalid_signature", Message: "payment signature is invalid"}
	ErrAuthorizationRejected = &Error{Kind: KindAuthorizationRejected, Code: "authorization_rejected", Message: "payment authorization was rejected"}
	ErrOrderCreationFailed   = &Error{Kind: KindOrderCreationFailed, Code: "order_creation_failed", Message: "order could not be created"}
)

// Storage-level conditions. Repositories return these so services can converge on retries.
var (
	ErrDuplicate = errors.New("duplicate key")
	ErrNotFound  = errors.New("document not found")
	ErrConflict  = errors.New("concurrent update")
)

// KindOf reports the kind of err, or "" when err is not a checkout error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
