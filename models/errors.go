package models

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrEmptyChain means no quotes survived filtering.
	ErrEmptyChain = errors.New("empty option chain")
	// ErrOptimizationFailed means the optimizer produced no usable point.
	ErrOptimizationFailed = errors.New("optimization failed")

	errNonFinite = errors.New("objective is not finite")
)

// EmptyChainError describes a chain that had nothing left to calibrate on.
type EmptyChainError struct {
	TargetExpiry int
	RawRows      int
}

func (e *EmptyChainError) Error() string {
	return fmt.Sprintf("no quotes left for %d DTE out of %d raw rows: %s", e.TargetExpiry, e.RawRows, ErrEmptyChain)
}

func (e *EmptyChainError) Unwrap() error { return ErrEmptyChain }

// OptimizationError carries the optimizer status alongside the cause.
type OptimizationError struct {
	Status optimize.Status
	Err    error
}

func (e *OptimizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (status %s): %v", ErrOptimizationFailed, e.Status, e.Err)
	}
	return fmt.Sprintf("%s (status %s)", ErrOptimizationFailed, e.Status)
}

func (e *OptimizationError) Is(target error) bool { return target == ErrOptimizationFailed }

func (e *OptimizationError) Unwrap() error { return e.Err }
