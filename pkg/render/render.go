/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package render turns manifest templates into ready-to-apply manifests.
//
// Two paths exist and never overlap: the secret materializer handles the
// secret template exclusively (it is the only code that touches
// confidential values), and the generic renderer handles every other
// template, substituting the image tag. Both enforce exactly-once
// placeholder resolution and re-parse their output as YAML, so an
// unresolved or coincidentally repeated token is a fatal render error
// rather than a broken manifest on the cluster.
package render

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/chatdocs/shipit/pkg/errors"
)

// SecretTemplateName is the template handled exclusively by the secret
// materializer; the generic renderer skips it.
const SecretTemplateName = "secret.yaml"

// ImagePlaceholder is the literal token standing in for the full image
// reference in non-secret templates. It carries no registry or project
// segment, so the same checked-in templates render correctly for every
// cluster configuration.
const ImagePlaceholder = "__IMAGE__"

// floatingImagePattern matches an image field whose value is still pinned
// to the floating "latest" tag. No rendered manifest may carry one.
var floatingImagePattern = regexp.MustCompile(`(?m)^\s*(?:-\s+)?image:\s*"?\S+:latest"?\s*$`)

const (
	outputDirMode  = 0o700
	outputFileMode = 0o600
)

// Renderer renders the template directory into the generated-output
// directory for one pipeline run.
type Renderer struct {
	// TemplateDir holds the checked-in manifest templates.
	TemplateDir string
	// OutputDir is the transient, git-ignored output directory; it is
	// recreated on each run.
	OutputDir string
	// ImageRepository is the tag-less image path substituted for the image
	// placeholder, e.g. "gcr.io/p1/docchat".
	ImageRepository string
}

// Clean recreates the output directory, discarding the previous run.
func (r *Renderer) Clean() error {
	if err := os.RemoveAll(r.OutputDir); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeRender, "failed to clean output directory", err)
	}
	if err := os.MkdirAll(r.OutputDir, outputDirMode); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeRender, "failed to create output directory", err)
	}
	return nil
}

// RenderAll renders every non-secret template, replacing the image
// placeholder with the supplied tag. Templates are independent and
// order-insensitive; output filenames mirror template filenames. Returns
// the rendered file paths in lexical order.
func (r *Renderer) RenderAll(tag string) ([]string, error) {
	if tag == "" {
		return nil, apperrors.New(apperrors.ErrCodeRender, "image tag is required")
	}

	entries, err := os.ReadDir(r.TemplateDir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeRender, "failed to read template directory", err)
	}

	var rendered []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == SecretTemplateName || !isYAML(name) {
			continue
		}

		out, err := r.renderTemplate(name, tag)
		if err != nil {
			return nil, err
		}
		rendered = append(rendered, out)
	}

	if len(rendered) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeRender,
			"no manifest templates found in "+r.TemplateDir)
	}
	return rendered, nil
}

func (r *Renderer) renderTemplate(name, tag string) (string, error) {
	src := filepath.Join(r.TemplateDir, name)
	raw, err := os.ReadFile(src)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeRender, "failed to read template "+name, err)
	}
	content := string(raw)

	// Secret-value tokens in a non-secret template mean the template set is
	// mislaid; refuse rather than leak an unencoded substitution path.
	if tok := findSecretToken(content); tok != "" {
		return "", apperrors.NewWithContext(apperrors.ErrCodeRender,
			fmt.Sprintf("template %s contains secret placeholder %s; only %s may hold secret tokens",
				name, tok, SecretTemplateName),
			map[string]any{"template": name})
	}

	switch n := strings.Count(content, ImagePlaceholder); n {
	case 0:
		// No image reference in this template (service, ingress); pass through.
	case 1:
		content = strings.Replace(content, ImagePlaceholder, r.ImageRepository+":"+tag, 1)
	default:
		return "", apperrors.NewWithContext(apperrors.ErrCodeRender,
			fmt.Sprintf("template %s contains %d image placeholders, expected at most one", name, n),
			map[string]any{"template": name, "occurrences": n})
	}

	// A template that hardcodes an image reference bypasses the placeholder
	// and would ship a stale floating tag; refuse it outright.
	if ref := floatingImagePattern.FindString(content); ref != "" {
		return "", apperrors.NewWithContext(apperrors.ErrCodeRender,
			fmt.Sprintf("template %s pins %s to the floating tag; use the %s placeholder",
				name, strings.TrimSpace(ref), ImagePlaceholder),
			map[string]any{"template": name})
	}

	if err := validateYAML(content); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeRender,
			"rendered manifest "+name+" is not valid YAML", err)
	}

	dst := filepath.Join(r.OutputDir, name)
	if err := os.WriteFile(dst, []byte(content), outputFileMode); err != nil {
		return "", apperrors.Wrap(apperrors.ErrCodeRender, "failed to write "+dst, err)
	}
	return dst, nil
}

// validateYAML parses every document in content, rejecting malformed output.
func validateYAML(content string) error {
	for _, doc := range strings.Split(content, "\n---\n") {
		var node yaml.Node
		if err := yaml.Unmarshal([]byte(doc), &node); err != nil {
			return err
		}
	}
	return nil
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
