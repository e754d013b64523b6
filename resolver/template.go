package resolver

import (
	"strings"
	"text/template"

	"github.com/c360/devstream/errors"
)

// renderKey substitutes context values into a templated key string.
// Single-pass variable substitution only; a reference to an undefined
// context value fails with a config error.
func renderKey(key string, ec Context) (string, error) {
	if !strings.Contains(key, "{{") {
		return key, nil
	}

	tmpl, err := template.New("key").Option("missingkey=error").Parse(key)
	if err != nil {
		return "", errors.WrapConfig(err, "resolver", "renderKey", "key template parsing")
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, map[string]any(ec)); err != nil {
		return "", errors.WrapConfig(err, "resolver", "renderKey", "key template rendering")
	}
	return sb.String(), nil
}
