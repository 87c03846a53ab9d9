// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package guardrail

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

type ConfidenceLevel string

const (
	Low    ConfidenceLevel = "low"
	Medium ConfidenceLevel = "medium"
	High   ConfidenceLevel = "high"
)

// ClassificationKind selects how matches of a classification are handled.
type ClassificationKind string

const (
	// KindPII marks matches as critical and masks them in the sanitized copy.
	KindPII ClassificationKind = "pii"
	// KindPromise routes matched spans to the promise arbiter.
	KindPromise ClassificationKind = "promise"
)

type GuardBatteryFile struct {
	Classifications []Classification `yaml:"classifications"`
}

type Classification struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Kind        ClassificationKind `yaml:"kind"`
	Priority    int                `yaml:"priority"`
	Patterns    []Pattern          `yaml:"patterns"`
}

type Pattern struct {
	Id              string          `yaml:"id"`
	Description     string          `yaml:"description"`
	Regex           string          `yaml:"regex"`
	Confidence      ConfidenceLevel `yaml:"confidence"`
	compiledPattern *regexp.Regexp  `yaml:"-"`
}

func (c *ConfidenceLevel) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := ConfidenceLevel(s)
	switch incoming {
	case High, Medium, Low:
		*c = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Confidence: %q", incoming)
	}
}

func (k *ClassificationKind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := ClassificationKind(s)
	switch incoming {
	case KindPII, KindPromise:
		*k = incoming
		return nil
	default:
		return fmt.Errorf("invalid value for Kind: %q", incoming)
	}
}

func (f *GuardBatteryFile) CompileRegexes() error {
	for i := range f.Classifications {
		for j := range f.Classifications[i].Patterns {
			pattern := &f.Classifications[i].Patterns[j]
			re, err := regexp.Compile(pattern.Regex)
			if err != nil {
				return fmt.Errorf("failed to compile the regex %s: %w", pattern.Regex, err)
			}
			pattern.compiledPattern = re
		}
	}
	return nil
}

func (f *GuardBatteryFile) SortByPriority() {
	sort.Slice(f.Classifications, func(i, j int) bool {
		return f.Classifications[i].Priority > f.Classifications[j].Priority
	})
}

// Finding is one pattern hit against a draft reply.
type Finding struct {
	MatchedContent     string             `json:"matched_content"`
	ClassificationName string             `json:"classification_name"`
	Kind               ClassificationKind `json:"kind"`
	PatternId          string             `json:"pattern_id"`
	PatternDescription string             `json:"pattern_description"`
	Confidence         ConfidenceLevel    `json:"confidence"`
}
