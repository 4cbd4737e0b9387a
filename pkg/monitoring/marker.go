/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package monitoring

import (
	"strings"

	"golang.org/x/text/cases"
)

// MarkerPolicy decides whether a change description triggers the monitoring
// installation. Matching rules are explicit configuration rather than a
// hard-coded substring check: the default policy is a case-insensitive
// substring match using Unicode case folding.
type MarkerPolicy struct {
	// Marker is the trigger token, e.g. "[monitoring]".
	Marker string
	// CaseSensitive disables case folding.
	CaseSensitive bool
	// WholeWord requires the marker to appear as a whitespace-delimited
	// token rather than any substring.
	WholeWord bool
}

// DefaultMarkerPolicy returns the permissive default for the given marker.
func DefaultMarkerPolicy(marker string) MarkerPolicy {
	return MarkerPolicy{Marker: marker}
}

// Matches reports whether message triggers monitoring installation.
// An empty marker never matches.
func (p MarkerPolicy) Matches(message string) bool {
	marker, haystack := p.Marker, message
	if marker == "" {
		return false
	}

	if !p.CaseSensitive {
		folder := cases.Fold()
		marker = folder.String(marker)
		haystack = folder.String(haystack)
	}

	if !p.WholeWord {
		return strings.Contains(haystack, marker)
	}

	for _, field := range strings.Fields(haystack) {
		if field == marker {
			return true
		}
	}
	return false
}
