// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roomservice

import (
	"errors"
	"fmt"
)

// ServiceError is a structured failure reported by the room service.
// Callers can use errors.As to extract it:
//
//	var serviceErr *roomservice.ServiceError
//	if errors.As(err, &serviceErr) {
//	    if serviceErr.Code == roomservice.CodeNotFound { ... }
//	}
type ServiceError struct {
	// Op is the client operation that failed ("join", "update_room").
	Op string
	// Code is the service's machine-readable error code.
	Code string
	// StatusCode is the HTTP-style status the service reported, or 0.
	StatusCode int
	// Message is the human-readable description from the service.
	Message string
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("roomservice: %s: %s (%d): %s", e.Op, e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("roomservice: %s: %s: %s", e.Op, e.Code, e.Message)
}

// Service error codes.
const (
	CodeNotFound        = "not_found"
	CodeRateLimited     = "rate_limited"
	CodeForbidden       = "forbidden"
	CodeRoomFull        = "room_full"
	CodeRoomLocked      = "room_locked"
	CodeConflict        = "conflict"
	CodeInvalidArgument = "invalid_argument"
	CodeNoMatch         = "no_match"
)

// IsServiceError checks whether err is a *ServiceError with the given
// code.
func IsServiceError(err error, code string) bool {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Code == code
	}
	return false
}
