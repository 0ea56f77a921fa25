// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultProcRoot is where kernel sysctls are read from.
const DefaultProcRoot = "/proc"

// RequirementError describes a missing or degraded host capability.
type RequirementError struct {
	Feature string `json:"feature" yaml:"feature"`
	Message string `json:"message" yaml:"message"`
	Fatal   bool   `json:"fatal" yaml:"fatal"`
}

func (e *RequirementError) Error() string {
	return fmt.Sprintf("%s: %s", e.Feature, e.Message)
}

// CheckBPFJIT reports whether the BPF JIT is enabled.
func CheckBPFJIT(procRoot string) (bool, error) {
	data, err := os.ReadFile(filepath.Join(procRoot, "sys/net/core/bpf_jit_enable"))
	if err != nil {
		return false, err
	}
	v := strings.TrimSpace(string(data))
	return v == "1" || v == "2", nil
}

// VerifyRequirements checks that the host can serve policy queries from the
// maps pinned under bpfRoot.
func VerifyRequirements(procRoot, bpfRoot string) []RequirementError {
	var errs []RequirementError

	if _, err := os.Stat(filepath.Join(procRoot, "sys/net/core/bpf_jit_enable")); os.IsNotExist(err) {
		errs = append(errs, RequirementError{
			Feature: "bpf",
			Message: "kernel does not expose BPF sysctls",
			Fatal:   true,
		})
	} else if enabled, err := CheckBPFJIT(procRoot); err != nil || !enabled {
		errs = append(errs, RequirementError{
			Feature: "jit",
			Message: "BPF JIT is not enabled",
		})
	}

	info, err := os.Stat(bpfRoot)
	switch {
	case os.IsNotExist(err):
		errs = append(errs, RequirementError{
			Feature: "bpffs",
			Message: fmt.Sprintf("%s does not exist", bpfRoot),
			Fatal:   true,
		})
	case err != nil:
		errs = append(errs, RequirementError{Feature: "bpffs", Message: err.Error(), Fatal: true})
	case !info.IsDir():
		errs = append(errs, RequirementError{
			Feature: "bpffs",
			Message: fmt.Sprintf("%s is not a directory", bpfRoot),
			Fatal:   true,
		})
	}

	return errs
}
