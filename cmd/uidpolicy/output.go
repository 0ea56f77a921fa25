// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"grimm.is/uidpolicy/internal/platform"
)

type outputFormat string

const (
	formatText outputFormat = "text"
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(s)); f {
	case formatText, formatJSON, formatYAML:
		return f, nil
	case "yml":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or yaml): %w", s, errUsage)
	}
}

type checkResult struct {
	UID     uint32 `json:"uid" yaml:"uid"`
	Metered bool   `json:"metered" yaml:"metered"`
	Blocked bool   `json:"blocked" yaml:"blocked"`
	Reason  string `json:"reason" yaml:"reason"`
}

type chainResult struct {
	Chain     string  `json:"chain" yaml:"chain"`
	AllowList bool    `json:"allow_list" yaml:"allow_list"`
	Enabled   bool    `json:"enabled" yaml:"enabled"`
	UID       *uint32 `json:"uid,omitempty" yaml:"uid,omitempty"`
	Rule      string  `json:"rule,omitempty" yaml:"rule,omitempty"`
}

type versionInfo struct {
	Version      string `json:"version" yaml:"version"`
	GoVersion    string `json:"go_version" yaml:"go_version"`
	Platform     string `json:"platform" yaml:"platform"`
	Kernel       string `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	DetectedTier string `json:"detected_tier,omitempty" yaml:"detected_tier,omitempty"`

	Requirements []platform.RequirementError `json:"requirements,omitempty" yaml:"requirements,omitempty"`
}

func writeOutput(w io.Writer, format outputFormat, v any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeText(w, v)
	}
}

func writeText(w io.Writer, v any) error {
	switch r := v.(type) {
	case checkResult:
		verdict := "allowed"
		if r.Blocked {
			verdict = "blocked"
		}
		_, err := fmt.Fprintf(w, "uid %d: %s (%s, metered=%t)\n", r.UID, verdict, r.Reason, r.Metered)
		return err
	case []chainResult:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CHAIN\tTYPE\tENABLED\tUID\tRULE")
		for _, c := range r {
			typ := "deny"
			if c.AllowList {
				typ = "allow"
			}
			uid := "-"
			if c.UID != nil {
				uid = fmt.Sprint(*c.UID)
			}
			rule := c.Rule
			if rule == "" {
				rule = "-"
			}
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n", c.Chain, typ, c.Enabled, uid, rule)
		}
		return tw.Flush()
	case versionInfo:
		fmt.Fprintf(w, "uidpolicy %s (%s, %s)\n", r.Version, r.GoVersion, r.Platform)
		if r.Kernel != "" {
			fmt.Fprintf(w, "kernel %s, detected tier %s\n", r.Kernel, r.DetectedTier)
		}
		for _, req := range r.Requirements {
			level := "warning"
			if req.Fatal {
				level = "missing"
			}
			fmt.Fprintf(w, "%s: %s\n", level, req.Error())
		}
		return nil
	default:
		_, err := fmt.Fprintf(w, "%+v\n", v)
		return err
	}
}
