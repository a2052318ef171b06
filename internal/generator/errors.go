package generator

import (
	"errors"
	"fmt"

	"github.com/ankek/unmeiori/internal/report"
	"github.com/ankek/unmeiori/internal/validation"
)

// Kind classifies the result of an operation
type Kind string

const (
	// KindNone is a clean success
	KindNone Kind = ""
	// KindDegraded is a success with substitutions recorded as degradations
	KindDegraded Kind = "degraded"
	// KindInputIncomplete is a success where optional sections came back empty
	KindInputIncomplete Kind = "input_incomplete"
	// KindInvalid is a request rejected by input validation
	KindInvalid Kind = "invalid"
	// KindFatal is a missing record or document
	KindFatal Kind = "fatal"
	// KindUnexpected is a failure or panic inside document assembly
	KindUnexpected Kind = "unexpected"
)

var (
	// ErrPDFNotGenerated is returned when a record has no stored PDF
	ErrPDFNotGenerated = errors.New("pdf not generated")
	// ErrPDFMissing is returned when the record names a PDF that is no longer on disk
	ErrPDFMissing = errors.New("pdf file missing")
)

// Failure carries the kind of a failed operation
type Failure struct {
	Kind Kind
	Op   string
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Op, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fatal(op string, err error) error {
	return &Failure{Kind: KindFatal, Op: op, Err: err}
}

func unexpected(op string, err error) error {
	return &Failure{Kind: KindUnexpected, Op: op, Err: err}
}

// KindOf classifies err. Unclassified errors are unexpected.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	var ie *validation.InputError
	if errors.As(err, &ie) {
		return KindInvalid
	}
	return KindUnexpected
}

// Outcome is the caller-facing summary of a generation. Degraded documents are successes.
type Outcome struct {
	Success      bool                 `json:"success"`
	Kind         Kind                 `json:"kind,omitempty"`
	Message      string               `json:"message"`
	Path         string               `json:"path,omitempty"`
	Filename     string               `json:"filename,omitempty"`
	Size         int64                `json:"size,omitempty"`
	Variant      report.Variant       `json:"variant,omitempty"`
	Degradations []report.Degradation `json:"degradations,omitempty"`
}

// Describe turns a failed operation into an Outcome
func Describe(err error) Outcome {
	if err == nil {
		return Outcome{Success: true, Message: "ok"}
	}
	return Outcome{Kind: KindOf(err), Message: err.Error()}
}

func succeeded(message string, degraded []report.Degradation) Outcome {
	o := Outcome{Success: true, Message: message, Degradations: degraded}
	if len(degraded) > 0 {
		o.Kind = KindDegraded
	}
	return o
}
