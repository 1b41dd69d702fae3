package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// fieldValue walks a dotted path ("fields.status.name") into an issue object
// and renders whatever it finds as a CSV cell.
func fieldValue(issue map[string]any, path string) string {
	var cur any = issue
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[seg]
		if !ok {
			return ""
		}
	}
	return render(cur)
}

// render flattens an API value to a string. Objects collapse to their display
// name, lists join their items; this mirrors how tracker option/user fields
// are conventionally exported.
func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		// JSON numbers arrive as float64; keep integers clean.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case map[string]any:
		for _, k := range []string{"displayName", "name", "value"} {
			if s, ok := t[k].(string); ok && s != "" {
				return s
			}
		}
		return ""
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := render(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(t)
	}
}
