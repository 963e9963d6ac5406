package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DomainError is a failure with a stable KV-<AREA>-<NNNN> code. The
// package-level values below are sentinels; attach context with
// WithDetails or Wrap, which return copies that still match the sentinel
// under errors.Is.
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

// NewDomainError declares a sentinel.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	b.WriteByte(' ')
	b.WriteString(e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *DomainError) Unwrap() error { return e.Cause }

// Is matches any DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// Class returns the first three digits of the code. They follow HTTP
// status numbering.
func (e *DomainError) Class() int { return CodeClass(e.Code) }

func (e *DomainError) with(details string, cause error) *DomainError {
	c := *e
	c.Details = details
	c.Cause = cause
	return &c
}

// WithDetails returns a copy carrying details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return e.with(details, e.Cause)
}

// WithDetailsf is WithDetails with formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.with(fmt.Sprintf(format, args...), e.Cause)
}

// Wrap returns a copy whose cause is err.
func (e *DomainError) Wrap(err error) *DomainError {
	return e.with(e.Details, err)
}

// WithCause is Wrap.
func (e *DomainError) WithCause(err error) *DomainError { return e.Wrap(err) }

// IsDomainError reports whether err has a DomainError in its chain, and,
// when code is not empty, whether that error carries code.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return code == "" || de.Code == code
}

// GetErrorCode returns the code of the first DomainError in err's chain,
// or "".
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// CodeClass returns the three digits after the last '-' of code, or 500
// when code is malformed.
func CodeClass(code string) int {
	i := strings.LastIndexByte(code, '-')
	if i < 0 || len(code)-i-1 < 3 {
		return 500
	}
	n, err := strconv.Atoi(code[i+1 : i+4])
	if err != nil || n < 100 {
		return 500
	}
	return n
}

// Stream and file failures.
var (
	ErrIO              = NewDomainError("KV-IO-5001", "i/o failure")
	ErrReplicaTransfer = NewDomainError("KV-IO-5002", "replica transfer failed")
)

// Snapshot content. 422 marks input that was read but cannot be used.
var (
	ErrCorruptSnapshot    = NewDomainError("KV-RDB-4220", "corrupt snapshot")
	ErrChecksumMismatch   = NewDomainError("KV-RDB-4221", "snapshot checksum mismatch")
	ErrUnsupportedVersion = NewDomainError("KV-RDB-4222", "unsupported snapshot version")
	ErrUnknownModuleType  = NewDomainError("KV-RDB-4223", "unknown module type")
	ErrNoSnapshot         = NewDomainError("KV-RDB-4040", "no snapshot found")
)

var (
	ErrInternal = NewDomainError("KV-SYS-5000", "internal error")
	// ErrArchive maps to 503: the object store is a remote dependency.
	ErrArchive  = NewDomainError("KV-SYS-5030", "archive upload failed")
	ErrCapacity = NewDomainError("KV-SYS-5070", "capacity exceeded")
)

// Misuse of an API by its caller.
var (
	ErrInvalidArgument = NewDomainError("KV-API-4001", "invalid argument")
	ErrSaveInProgress  = NewDomainError("KV-API-4090", "save already in progress")
	ErrClosed          = NewDomainError("KV-API-4091", "closed")
)
