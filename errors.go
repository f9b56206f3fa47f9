// Copyright (c) 2026 The sing Authors
// Licensed under the MIT License. See LICENSE file in the project root.

package sing

import (
	"errors"
	"fmt"
)

var (
	// ErrJail is the base error for every path the jail refuses to resolve.
	ErrJail = errors.New("path jail")

	ErrAbsolutePathForbidden = fmt.Errorf("%w: absolute path forbidden", ErrJail)
	ErrInvalidBase           = fmt.Errorf("%w: invalid jail root", ErrJail)
	ErrResourceNotFound      = fmt.Errorf("%w: resource not found", ErrJail)
	ErrTraversalDetected     = fmt.Errorf("%w: path escapes jail root", ErrJail)
)

var (
	// ErrScript is the base error for failures raised while hosting the script.
	ErrScript = errors.New("script host")

	ErrScriptLoad = fmt.Errorf("%w: load failed", ErrScript)
	ErrEntryPoint = fmt.Errorf("%w: invalid entry point", ErrScript)
	ErrInit       = fmt.Errorf("%w: init failed", ErrScript)
	ErrFrame      = fmt.Errorf("%w: frame failed", ErrScript)
	ErrClosed     = fmt.Errorf("%w: host closed", ErrScript)
)

// pathError ties a jail sentinel to the path the script asked for.
func pathError(sentinel error, requested string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %q: %w", sentinel, requested, cause)
	}
	return fmt.Errorf("%w: %q", sentinel, requested)
}
