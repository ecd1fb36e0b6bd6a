package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// Error types for the tag cache
type ErrorType string

const (
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeStore      ErrorType = "store"
	ErrorTypeResolution ErrorType = "resolution"
	ErrorTypeTrace      ErrorType = "trace"
	ErrorTypeConfig     ErrorType = "config"
)

// Code classifies an outcome so callers can decide whether to retry, warn
// or carry on. CodeNone is the classification of a nil error.
type Code string

const (
	CodeNone             Code = "none"
	CodeParse            Code = "parse"
	CodeResourceNotFound Code = "resource_not_found"
	CodeEmptyCache       Code = "empty_cache"
	CodeStackLimit       Code = "stack_limit"
	CodeUnknownReceiver  Code = "unknown_receiver"
	CodeUnknownResource  Code = "unknown_resource"
	CodeDuckTyped        Code = "duck_typed"
	CodeStore            Code = "store"
	CodeConfig           Code = "config"
	CodeCancelled        Code = "cancelled"
)

// Fatal reports whether the code means the operation produced no usable result.
// Resolution misses and duck-typed answers are soft.
func (c Code) Fatal() bool {
	switch c {
	case CodeNone, CodeUnknownReceiver, CodeUnknownResource, CodeDuckTyped:
		return false
	}
	return true
}

// classified is implemented by every error in this package
type classified interface {
	Code() Code
}

// CodeOf returns the classification of err, CodeNone for nil and CodeStore
// for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var c classified
	if stderrors.As(err, &c) {
		return c.Code()
	}
	return CodeStore
}

// ParseError represents a syntax error in one PHP file. It aborts that
// file's contribution only.
type ParseError struct {
	Type       ErrorType
	FilePath   string
	Line       int
	Column     int
	Token      string
	Underlying error
	Timestamp  time.Time
}

// NewParseError creates a new parse error
func NewParseError(path string, line, column int, token string, err error) *ParseError {
	return &ParseError{
		Type:       ErrorTypeParse,
		FilePath:   path,
		Line:       line,
		Column:     column,
		Token:      token,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at %s:%d:%d (near token %q): %v",
		e.FilePath, e.Line, e.Column, e.Token, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// Code implements classified
func (e *ParseError) Code() Code { return CodeParse }

// StoreError is fatal for one tag store; the cache keeps serving the others.
type StoreError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewStoreError creates a new store error
func NewStoreError(op, path string, err error) *StoreError {
	return &StoreError{
		Type:       ErrorTypeStore,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Underlying
}

// Code implements classified. An operation stopped by its context is
// cancelled rather than failed.
func (e *StoreError) Code() Code {
	if stderrors.Is(e.Underlying, context.Canceled) || stderrors.Is(e.Underlying, context.DeadlineExceeded) {
		return CodeCancelled
	}
	return CodeStore
}

// ResolutionError describes why an expression did not resolve to exactly
// one declaration. It is never fatal: results that accompany it are a
// best effort.
type ResolutionError struct {
	Type       ErrorType
	Kind       Code
	Expression string
	Hop        string // the member name that failed, if any
	ClassName  string // the class searched, if known
}

// NewResolutionError creates a new resolution error
func NewResolutionError(code Code, expression, hop string) *ResolutionError {
	return &ResolutionError{
		Type:       ErrorTypeResolution,
		Kind:       code,
		Expression: expression,
		Hop:        hop,
	}
}

// WithClass records the class that was searched
func (e *ResolutionError) WithClass(className string) *ResolutionError {
	e.ClassName = className
	return e
}

// Error implements the error interface
func (e *ResolutionError) Error() string {
	switch {
	case e.Hop != "" && e.ClassName != "":
		return fmt.Sprintf("%s: %s (hop %q in class %s)", e.Kind, e.Expression, e.Hop, e.ClassName)
	case e.Hop != "":
		return fmt.Sprintf("%s: %s (hop %q)", e.Kind, e.Expression, e.Hop)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Expression)
	}
}

// Code implements classified
func (e *ResolutionError) Code() Code { return e.Kind }

// TraceError is a fatal stop of the call stack builder
type TraceError struct {
	Type       ErrorType
	Kind       Code
	FilePath   string
	ClassName  string
	MethodName string
	Underlying error
}

// NewTraceError creates a new trace error
func NewTraceError(code Code, path, className, methodName string, err error) *TraceError {
	return &TraceError{
		Type:       ErrorTypeTrace,
		Kind:       code,
		FilePath:   path,
		ClassName:  className,
		MethodName: methodName,
		Underlying: err,
	}
}

// Error implements the error interface
func (e *TraceError) Error() string {
	target := e.MethodName
	if e.ClassName != "" {
		target = e.ClassName + "::" + e.MethodName
	}
	if e.Underlying != nil {
		return fmt.Sprintf("call stack %s for %s in %s: %v", e.Kind, target, e.FilePath, e.Underlying)
	}
	return fmt.Sprintf("call stack %s for %s in %s", e.Kind, target, e.FilePath)
}

// Unwrap returns the underlying error
func (e *TraceError) Unwrap() error {
	return e.Underlying
}

// Code implements classified
func (e *TraceError) Code() Code { return e.Kind }

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// Code implements classified
func (e *ConfigError) Code() Code { return CodeConfig }

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	// Filter out nil errors
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// ErrorOrNil returns nil when no errors were collected
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}
