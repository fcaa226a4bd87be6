// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError asks main to exit with Code without printing anything: the
// command has already reported the outcome. replay returns one when
// --strict finds unresolved references.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode is checked by main through an interface assertion.
func (e *ExitError) ExitCode() int {
	return e.Code
}
