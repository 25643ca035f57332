// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package kb

import "errors"

// ErrNotFound reports that the requested article id does not exist.
// Callers should treat it as client-correctable.
var ErrNotFound = errors.New("article not found")

// ErrInvalidInput reports a rejected request: empty title, unknown
// lifecycle action, disallowed transition, or a bad rollback target.
var ErrInvalidInput = errors.New("invalid input")
