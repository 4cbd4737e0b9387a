/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package image

import (
	"regexp"
	"time"
)

// tagLayout renders timestamps as YYYYMMDD-HHMMSS.
const tagLayout = "20060102-150405"

// FloatingTag is the floating tag pushed alongside every run tag. Manifests
// never reference it; the run tag is the authoritative version identifier
// so the rollout step always observes a real change.
const FloatingTag = "latest"

var tagPattern = regexp.MustCompile(`^\d{8}-\d{6}$`)

// NewTag generates the run's version tag from the given time, in UTC.
func NewTag(now time.Time) string {
	return now.UTC().Format(tagLayout)
}

// IsRunTag reports whether s matches the generated timestamp tag format.
func IsRunTag(s string) bool {
	return tagPattern.MatchString(s)
}
