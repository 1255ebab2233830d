// Package compileerr defines the stable error-code vocabulary for
// compile-time rejections of the input program (spec.md §6/§7). Every
// unrecoverable rejection in internal/ast, internal/normalize, or
// internal/lower returns one of these instead of a bare fmt.Errorf, so
// callers can switch on Code without string matching — the teacher's
// analogous stable vocabulary is its Node/Transition Type string enums.
package compileerr

import "fmt"

// Code is one of the fixed rejection codes from spec.md §6.
type Code string

const (
	CodeUnsupportedFeature           Code = "Unsupported_Feature"
	CodeInvalidInput                 Code = "Invalid_Input"
	CodeUnexpectedError              Code = "Unexpected_Error"
	CodeClassesNotSupported          Code = "Classes_are_not_supported"
	CodeThrowMustBeErrorOrSFE        Code = "StepFunction_Throw_must_be_Error_or_StepFunctionError_class"
	CodeUndefinedNotSupported        Code = "Step_Functions_does_not_support_undefined"
	CodePropertyNamesMustBeConstant  Code = "StepFunctions_property_names_must_be_constant"
	CodeInvalidCollectionAccess      Code = "StepFunctions_Invalid_collection_access"
	CodeNoArithmeticOnVariables      Code = "Cannot_perform_all_arithmetic_or_bitwise_computations_on_variables_in_Step_Function"
	CodeInvalidIntegrationConfig     Code = "Invalid_Integration_Config"
)

// Span is a source location, carried through from the AST when available.
type Span struct {
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
	Node   string `json:"node,omitempty"` // human label of the offending node kind
}

// Error is the typed compile-time rejection. It implements error.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Span    Span   `json:"span,omitempty"`
}

func (e *Error) Error() string {
	if e.Span.Node != "" {
		return fmt.Sprintf("%s: %s (at %s)", e.Code, e.Message, e.Span.Node)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs an *Error for the given code/message, with an optional span.
func New(code Code, span Span, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Span: span}
}

// As reports whether err is a *compileerr.Error and returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
