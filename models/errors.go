// SPDX-License-Identifier: GPL-3.0-only

package models

import "errors"

// Domain error kinds. These are caller-correctable rule violations;
// anything else bubbling out of the services is an infrastructure
// fault the caller cannot fix by changing its request.
var (
	ErrInvalidUser      = errors.New("a valid user id is required")
	ErrUserNotFound     = errors.New("user not found")
	ErrPlanNotFound     = errors.New("plan not found")
	ErrLimitReached     = errors.New("conversion limit reached, please upgrade your plan")
	ErrDuplicateAccount = errors.New("this email is already registered")
	ErrNotFound         = errors.New("record not found")
	ErrConflictingState = errors.New("operation conflicts with existing references")
)
