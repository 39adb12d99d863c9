package dispatch

import (
	"fmt"
	"strings"
)

// RenderTemplate substitutes {name} placeholders from vars. A missing
// variable renders as the empty string, never an error; its name comes back
// in the second return for operator visibility.
func RenderTemplate(template string, names []string, vars map[string]any) (string, []string) {
	result := template
	var missing []string
	for _, name := range names {
		placeholder := "{" + name + "}"
		v, ok := vars[name]
		if !ok || v == nil {
			if strings.Contains(result, placeholder) {
				missing = append(missing, name)
			}
			result = strings.ReplaceAll(result, placeholder, "")
			continue
		}
		result = strings.ReplaceAll(result, placeholder, toString(v))
	}
	return result, missing
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}
