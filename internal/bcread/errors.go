// Package bcread reads generation-3.0 bitcode into the ir package's module
// representation. Opening a module parses everything except function bodies,
// which are materialized on demand through the ir.Materializer interface.
package bcread

import "errors"

// The exhaustive error taxonomy of the reader. Every failure wraps exactly
// one of these sentinels.
var (
	ErrInvalidBitcodeSignature          = errors.New("invalid bitcode signature")
	ErrInvalidBitcodeWrapperHeader      = errors.New("invalid bitcode wrapper header")
	ErrMalformedBlock                   = errors.New("malformed block")
	ErrInvalidMultipleBlocks            = errors.New("invalid multiple blocks")
	ErrInvalidRecord                    = errors.New("invalid record")
	ErrInvalidValue                     = errors.New("invalid value")
	ErrInvalidType                      = errors.New("invalid type")
	ErrInvalidTypeForValue              = errors.New("invalid type for value")
	ErrInvalidTypeTable                 = errors.New("invalid TYPE table")
	ErrInvalidID                        = errors.New("invalid ID")
	ErrInvalidConstantReference         = errors.New("invalid constant reference")
	ErrInvalidInstructionWithNoBB       = errors.New("invalid instruction with no basic block")
	ErrExpectedConstant                 = errors.New("expected a constant")
	ErrConflictingMetadataKindRecords   = errors.New("conflicting METADATA_KIND records")
	ErrInsufficientFunctionProtos       = errors.New("insufficient function protos")
	ErrNeverResolvedValueFoundInFunction = errors.New("never resolved value found in function")
	ErrMalformedGlobalInitializerSet    = errors.New("malformed global initializer set")
	ErrCouldNotFindFunctionInStream     = errors.New("could not find function in stream")
)
