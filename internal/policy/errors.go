// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package policy

import (
	uerrors "grimm.is/uidpolicy/internal/errors"
)

// Failure sentinels, matched with errors.Is. Concrete errors carry a message
// and usually an errno (see errors.Errno).
var (
	// ErrUnsupported: the platform tier is below the minimum supported one.
	ErrUnsupported = uerrors.Sentinel(uerrors.KindUnsupported)
	// ErrTriggerFailed: the external map loader could not be requested.
	ErrTriggerFailed = uerrors.Sentinel(uerrors.KindTriggerFailed)
	// ErrNotInitialized: evaluation ran before the shared tables were opened.
	ErrNotInitialized = uerrors.Sentinel(uerrors.KindNotInitialized)
	// ErrReadFailed: a shared table read failed after the tables were ready.
	ErrReadFailed = uerrors.Sentinel(uerrors.KindReadFailed)
)
