package models

import "errors"

// Routing failures, rejected before authentication. Resolution fails closed:
// an unknown routing key never binds a partition.
var (
	ErrUnknownTenant  = errors.New("unknown tenant")
	ErrTenantInactive = errors.New("tenant inactive")
)

// ErrNotFound means the resource is absent in the bound partition. Absence and
// another tenant's resource are indistinguishable to the caller.
var ErrNotFound = errors.New("not found")
