package service

import (
	"fmt"
)

type ErrTopologyUnavailable struct {
	error
}

func NewErrTopologyUnavailable(cause error) *ErrTopologyUnavailable {
	return &ErrTopologyUnavailable{fmt.Errorf("topology snapshot unavailable: %w", cause)}
}

func (e *ErrTopologyUnavailable) Unwrap() error {
	return e.error
}

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(name, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, name)}
}

func NewErrSiteNotFound(name string) *ErrResourceNotFound {
	return NewErrResourceNotFound(name, "site")
}

type ErrInvalidFilter struct {
	error
}

func NewErrInvalidFilter(cause error) *ErrInvalidFilter {
	return &ErrInvalidFilter{fmt.Errorf("bad request: invalid filter: %w", cause)}
}
