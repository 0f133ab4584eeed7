// Package loaderr defines the error taxonomy shared by every Loadstone
// component. A single Kind enum keeps the decision tables in the
// bootloader orchestrator exhaustive and easy to reason about, instead of
// letting each package invent its own sentinel error type.
package loaderr

import (
	"errors"
	"fmt"
)

// Kind enumerates the possible bootloader error conditions.
type Kind uint8

const (
	// BankInvalid marks a bank descriptor that references unreachable memory.
	BankInvalid Kind = iota
	// BankEmpty marks a bank with no MAGIC sentinel found.
	BankEmpty
	// ImageTooBig marks a payload that exceeds the bank minus trailer.
	ImageTooBig
	// CrcInvalid marks a CRC trailer that failed to verify.
	CrcInvalid
	// SignatureInvalid marks an ECDSA trailer that failed to verify.
	SignatureInvalid
	// ImageIsNotGolden marks a golden-required copy whose source wasn't golden.
	ImageIsNotGolden
	// NoImageToRestoreFrom marks exhaustion of every restore candidate.
	NoImageToRestoreFrom
	// NoGoldenBankSupport marks recovery requested with no golden bank configured.
	NoGoldenBankSupport
	// NoExternalFlash marks an operation that needed external flash that isn't present.
	NoExternalFlash
	// DriverError wraps an underlying I/O error from a flash or serial driver.
	DriverError
	// ConfigurationError marks a violated static bank-table invariant.
	ConfigurationError
)

func (k Kind) String() string {
	switch k {
	case BankInvalid:
		return "BankInvalid"
	case BankEmpty:
		return "BankEmpty"
	case ImageTooBig:
		return "ImageTooBig"
	case CrcInvalid:
		return "CrcInvalid"
	case SignatureInvalid:
		return "SignatureInvalid"
	case ImageIsNotGolden:
		return "ImageIsNotGolden"
	case NoImageToRestoreFrom:
		return "NoImageToRestoreFrom"
	case NoGoldenBankSupport:
		return "NoGoldenBankSupport"
	case NoExternalFlash:
		return "NoExternalFlash"
	case DriverError:
		return "DriverError"
	case ConfigurationError:
		return "ConfigurationError"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every Loadstone component.
// It satisfies the standard error interface and supports errors.Is/errors.As
// via Unwrap, so callers can test `errors.Is(err, loaderr.New(loaderr.BankEmpty, ""))`
// style checks through the Kind, or unwrap to an underlying driver error.
type Error struct {
	Kind Kind
	// Msg is an optional human-readable detail (e.g. a configuration
	// violation description). May be empty.
	Msg string
	// Err is the underlying error for DriverError/ConfigurationError, or nil.
	Err error
}

// New constructs an Error of the given kind with an optional detail message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an Error of the given kind wrapping an underlying error.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Msg, e.Err)
	}
	if e.Msg != "" {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Msg)
	}
	return fmt.Sprintf("[%s]", e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, so that
// errors.Is(err, loaderr.New(loaderr.BankEmpty, "")) works regardless of
// message/wrapped-error contents.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Is reports whether err is (or wraps) a *Error of the given kind. This is
// the usual way callers check the taxonomy: `loaderr.Is(err, loaderr.BankEmpty)`.
func Is(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// Driver-level failure reasons, used as the Msg of a DriverError: alone
// (via New) when there is no concrete underlying error, or next to the
// wrapped cause in Err when there is.
const (
	ReasonMemoryNotReachable = "address outside writable range"
	ReasonMisalignedAccess   = "address or length violates chip granularity"
	ReasonTimeout            = "flash or serial operation timed out"
	ReasonPeripheralError    = "underlying bus failure"
)
