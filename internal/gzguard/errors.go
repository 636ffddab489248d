package gzguard

import (
	"fmt"
	"log"
)

// ErrorCategory groups the kinds of integrity violation the engine can
// detect. Every one of them is fatal: spec.md is explicit that silent
// continuation after an inconsistency would defeat the tool's purpose,
// so these are always delivered to the caller via panic, never returned.
type ErrorCategory string

const (
	CategorySignature   ErrorCategory = "SIGNATURE"
	CategoryZoneMismatch ErrorCategory = "ZONE_MISMATCH"
	CategorySizeMismatch ErrorCategory = "SIZE_MISMATCH"
	CategoryOverUnderflow ErrorCategory = "OVER_UNDERFLOW"
	CategoryAlignment   ErrorCategory = "ALIGNMENT"
	CategoryDoubleFree  ErrorCategory = "DOUBLE_FREE"
	CategoryMapEntry    ErrorCategory = "MAP_ENTRY"
	CategoryReserve     ErrorCategory = "RESERVE"
	CategoryProtect     ErrorCategory = "PROTECT"
)

// IntegrityError is the panic value raised for every integrity violation
// the engine detects. It always carries the offending address and the
// expected/observed values so that a reader of a crash or memory dump can
// diagnose the failure without re-deriving it from the stack.
type IntegrityError struct {
	Category ErrorCategory
	Message  string
	Address  uintptr
	Expected interface{}
	Observed interface{}
}

func (e *IntegrityError) Error() string {
	if e.Expected == nil && e.Observed == nil {
		return fmt.Sprintf("gzguard: [%s] %s (address: 0x%x)", e.Category, e.Message, e.Address)
	}

	return fmt.Sprintf("gzguard: [%s] %s (address: 0x%x, expected: %v, observed: %v)",
		e.Category, e.Message, e.Address, e.Expected, e.Observed)
}

// fatal logs the integrity violation through logger (if non-nil) before
// panicking with it, so a run with Config.Verbose set leaves a trail of
// what the engine detected even when the panic itself is recovered
// further up the stack (as cmd/gzguard-harness's stress mode does).
func fatal(logger *log.Logger, category ErrorCategory, addr uintptr, message string, expected, observed interface{}) {
	err := &IntegrityError{
		Category: category,
		Message:  message,
		Address:  addr,
		Expected: expected,
		Observed: observed,
	}

	if logger != nil {
		logger.Print(err.Error())
	}

	panic(err)
}
