/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package config

import "log/slog"

// Secrets holds the application's confidential values. Raw values are never
// logged or persisted in plaintext: String, GoString, and LogValue all
// redact, so an accidental %v or slog attr cannot leak a key.
type Secrets struct {
	OpenAIAPIKey   string
	WeaviateURL    string
	WeaviateAPIKey string
}

const redacted = "[REDACTED]"

// Map returns the secrets keyed by their canonical environment names, for
// the secret materializer. Callers must not log the returned values.
func (s Secrets) Map() map[string]string {
	return map[string]string{
		KeyOpenAIAPIKey:   s.OpenAIAPIKey,
		KeyWeaviateURL:    s.WeaviateURL,
		KeyWeaviateAPIKey: s.WeaviateAPIKey,
	}
}

// String implements fmt.Stringer with redaction.
func (s Secrets) String() string { return redacted }

// GoString implements fmt.GoStringer with redaction, covering %#v.
func (s Secrets) GoString() string { return redacted }

// LogValue implements slog.LogValuer with redaction.
func (s Secrets) LogValue() slog.Value {
	return slog.StringValue(redacted)
}
