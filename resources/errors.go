package resources

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrResourceNotFound is returned when no descriptor matches the URI.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrUnboundPlaceholder is returned when a template placeholder has no value.
	ErrUnboundPlaceholder = errors.New("unbound placeholder")
	// ErrDuplicateResource is returned when a URI is registered twice.
	ErrDuplicateResource = errors.New("duplicate resource")
	// ErrInvalidTemplate is returned for malformed URI templates.
	ErrInvalidTemplate = errors.New("invalid resource template")
	// ErrResolverFrozen is returned by Register after Freeze.
	ErrResolverFrozen = errors.New("resolver is frozen")
)

// ResourceNotFoundError is returned when the URI matches no static
// descriptor and no template.
type ResourceNotFoundError struct {
	URI string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.URI)
}

func (e *ResourceNotFoundError) Unwrap() error { return ErrResourceNotFound }

// UnboundPlaceholderError is returned when a templated URI is resolved
// without values for all of its placeholders.
type UnboundPlaceholderError struct {
	URI      string
	Template string
	Missing  []string
}

func (e *UnboundPlaceholderError) Error() string {
	return fmt.Sprintf("unbound placeholder in %s: %s", e.URI, strings.Join(e.Missing, ", "))
}

func (e *UnboundPlaceholderError) Unwrap() error { return ErrUnboundPlaceholder }
