/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

package render

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/chatdocs/shipit/pkg/errors"
)

// secretTokenPattern matches any secret-value placeholder token.
var secretTokenPattern = regexp.MustCompile(`__[A-Z][A-Z0-9_]*_B64__`)

// SecretPlaceholder returns the placeholder token for a secret key, e.g.
// "__OPENAI_API_KEY_B64__" for OPENAI_API_KEY.
func SecretPlaceholder(key string) string {
	return "__" + key + "_B64__"
}

// MaterializeSecret renders the secret template by substituting each key's
// placeholder with the std-base64 encoding (no line wrapping) of its raw
// value, and writes the result to the output directory.
//
// It short-circuits before writing anything if any required value is empty,
// and fails if a placeholder is missing, repeated, or left unresolved. Raw
// values never appear in the output, in errors, or in logs.
func (r *Renderer) MaterializeSecret(secrets map[string]string) (string, error) {
	// Fail before any I/O if a value is absent.
	var empty []string
	for key, val := range secrets {
		if strings.TrimSpace(val) == "" {
			empty = append(empty, key)
		}
	}
	if len(empty) > 0 {
		return "", apperrors.New(apperrors.ErrCodeConfig,
			"refusing to materialize secret manifest, empty values for: "+joinSorted(empty))
	}

	src := filepath.Join(r.TemplateDir, SecretTemplateName)
	raw, err := os.ReadFile(src)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeRender, "failed to read secret template", err)
	}
	content := string(raw)

	for key, val := range secrets {
		token := SecretPlaceholder(key)
		switch n := strings.Count(content, token); n {
		case 1:
			encoded := base64.StdEncoding.EncodeToString([]byte(val))
			content = strings.Replace(content, token, encoded, 1)
		case 0:
			return "", apperrors.New(apperrors.ErrCodeRender,
				fmt.Sprintf("secret template missing placeholder %s", token))
		default:
			return "", apperrors.New(apperrors.ErrCodeRender,
				fmt.Sprintf("secret template contains %d instances of %s, expected exactly one", n, token))
		}
	}

	// Any token left over belongs to a key the pipeline does not know.
	if tok := findSecretToken(content); tok != "" {
		return "", apperrors.New(apperrors.ErrCodeRender,
			"unresolved secret placeholder "+tok)
	}

	if err := validateYAML(content); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeRender,
			"materialized secret manifest is not valid YAML", err)
	}

	if err := os.MkdirAll(r.OutputDir, outputDirMode); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeRender, "failed to create output directory", err)
	}
	dst := filepath.Join(r.OutputDir, SecretTemplateName)
	if err := os.WriteFile(dst, []byte(content), outputFileMode); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeRender, "failed to write secret manifest", err)
	}
	return dst, nil
}

func findSecretToken(content string) string {
	return secretTokenPattern.FindString(content)
}

func joinSorted(keys []string) string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
