// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !linux

package platform

import "errors"

// Detect is unavailable off Linux; the shared maps do not exist there.
func Detect() (Static, KernelVersion, error) {
	return Static(TierPreS), KernelVersion{}, errors.New("platform detection requires Linux")
}
