package lasso

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dLasso/lib/dataio"
)

// Kind classifies the errors of the solver. Every kind is fatal for the run.
type Kind int

const (
	KindConfiguration     Kind = iota + 1 // malformed partition sizes, mismatched dimensions
	KindProtocolViolation                 // observed clock skew outside the staleness bound
	KindDataFormat                        // malformed input while loading
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindDataFormat:
		return "DataFormatError"
	default:
		return "UnknownError"
	}
}

// Error is returned by all operations of the solver
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func configError(format string, args ...interface{}) error {
	return &Error{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

func protocolError(format string, args ...interface{}) error {
	return &Error{Kind: KindProtocolViolation, Msg: fmt.Sprintf(format, args...)}
}

// loadError classifies an error returned by the dataio package
func loadError(err error) error {
	kind := KindConfiguration
	if errors.Is(err, dataio.ErrDataFormat) {
		kind = KindDataFormat
	}
	return &Error{Kind: kind, Msg: "loading data", Err: err}
}

func hasKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsConfigurationError reports whether err is (or wraps) a configuration error
func IsConfigurationError(err error) bool {
	return hasKind(err, KindConfiguration)
}

// IsProtocolViolation reports whether err is (or wraps) a protocol violation
func IsProtocolViolation(err error) bool {
	return hasKind(err, KindProtocolViolation)
}

// IsDataFormatError reports whether err is (or wraps) a data format error
func IsDataFormatError(err error) bool {
	return hasKind(err, KindDataFormat)
}
