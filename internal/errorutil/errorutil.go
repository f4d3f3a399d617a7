package errorutil

import "errors"

// ErrDataIntegrity is a base error type to use for failures that are due to
// unrecoverable data integrity issues.
var ErrDataIntegrity = errors.New("data integrity error")

// ErrDecode is returned when a stack batch is malformed or does not match
// the expected frame schema.
var ErrDecode = errors.New("decode error")

// ErrCardinality is returned when more stacks are supplied than declared ranks.
var ErrCardinality = errors.New("more stacks than declared ranks")

// ErrEmptyInput is returned when there are no stacks or no declared ranks.
var ErrEmptyInput = errors.New("empty input")

// ErrDuplicateRank is returned when a rank is declared more than once.
var ErrDuplicateRank = errors.New("duplicate rank")

// ErrFetch wraps a failure to collect the stack of a single rank.
var ErrFetch = errors.New("fetch error")

// ErrOutput wraps failures to create or write an output object.
var ErrOutput = errors.New("output error")
