package store

import (
	"strings"
)

// UnknownLabel is the section and name reported for anomalous or low-confidence input.
const UnknownLabel = "unknown"

// ClassificationResult is the (section, name) pair a repair description is classified into.
type ClassificationResult struct {
	Section string `json:"section"`
	Name    string `json:"name"`
}

// UnknownResult returns the sentinel result for rejected input.
func UnknownResult() ClassificationResult {
	return ClassificationResult{Section: UnknownLabel, Name: UnknownLabel}
}

// IsUnknown reports whether r is the unknown/unknown sentinel.
func (r ClassificationResult) IsUnknown() bool {
	return r.Section == UnknownLabel && r.Name == UnknownLabel
}

// ParseLabel splits a combined "section|name" class label on the first separator.
func ParseLabel(label string) (ClassificationResult, bool) {
	section, name, ok := strings.Cut(label, "|")
	if !ok {
		return ClassificationResult{}, false
	}
	return ClassificationResult{Section: section, Name: name}, true
}

// String returns the combined "section|name" label.
func (r ClassificationResult) String() string {
	return r.Section + "|" + r.Name
}
