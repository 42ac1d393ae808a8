// Package path implements component C: JSON-path resolve/assign/extract used
// by the workflow engine's I/O transformations and Choice-state variable
// references. Reads go through PaesslerAG/jsonpath (a gval-backed JSONPath
// evaluator, supporting the full `$`, `.name`, `[index]`, `[*]` grammar plus
// filter expressions); assignment — which jsonpath has no notion of — goes
// through tidwall/gjson+sjson over the JSON-encoded document, since that
// pair already round-trips the workflow payload representation used on the
// wire.
package path

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/local-web-services/ldk/internal/ldkerr"
)

// ContextPrefix is the context-object root used for `$$`-prefixed references,
// e.g. `$$.Map.Item.Value` injected by the Map state (§4.7.6).
const ContextPrefix = "$$"

// Extract resolves a JSONPath expression against doc. An empty or "$" path
// returns doc unchanged. Paths prefixed with "$$" resolve against ctxDoc
// instead (the synthetic workflow context object); ctxDoc may be nil if the
// caller never references "$$".
func Extract(doc, ctxDoc interface{}, expr string) (interface{}, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "$" {
		return doc, nil
	}

	root := doc
	queryExpr := expr
	if strings.HasPrefix(expr, ContextPrefix) {
		root = ctxDoc
		queryExpr = "$" + strings.TrimPrefix(expr, ContextPrefix)
		if queryExpr == "$" {
			return root, nil
		}
	}

	result, err := jsonpath.Get(queryExpr, root)
	if err != nil {
		return nil, ldkerr.Client("InvalidPathError", "invalid path "+expr+": "+err.Error())
	}
	return result, nil
}

// ExtractRequired is like Extract but treats a not-found path as an error,
// matching the workflow engine's need to fail fast on an absent ItemsPath.
func ExtractRequired(doc, ctxDoc interface{}, expr string) (interface{}, error) {
	v, err := Extract(doc, ctxDoc, expr)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ldkerr.Client("PathNotFoundError", "path not found: "+expr)
	}
	return v, nil
}

// Assign sets the value at the given JSONPath within doc, creating
// intermediate objects/arrays as needed, and returns the updated document.
// Only "$.a.b[0].c"-style simple paths are supported (no wildcards/filters —
// assignment targets are always concrete, per the workflow ResultPath
// grammar).
func Assign(doc interface{}, expr string, value interface{}) (interface{}, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "$" {
		return value, nil
	}
	if !strings.HasPrefix(expr, "$") {
		return nil, ldkerr.Client("InvalidPathError", "assignment path must start with $: "+expr)
	}

	gjsonPath, err := toGJSONPath(expr)
	if err != nil {
		return nil, err
	}

	docBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, ldkerr.Client("InvalidPathError", "document is not JSON-serializable: "+err.Error())
	}

	out, err := sjson.SetBytes(docBytes, gjsonPath, value)
	if err != nil {
		return nil, ldkerr.Client("InvalidPathError", "cannot assign at "+expr+": "+err.Error())
	}

	var result interface{}
	if err := json.Unmarshal(out, &result); err != nil {
		return nil, ldkerr.Client("InvalidPathError", "assignment produced invalid JSON: "+err.Error())
	}
	return result, nil
}

// toGJSONPath translates a "$.a.b[0].c" JSONPath expression into gjson/sjson
// dotted-path syntax ("a.b.0.c").
func toGJSONPath(expr string) (string, error) {
	rest := strings.TrimPrefix(expr, "$")
	rest = strings.TrimPrefix(rest, ".")
	if rest == "" {
		return "", nil
	}

	var out strings.Builder
	i := 0
	for i < len(rest) {
		switch rest[i] {
		case '.':
			out.WriteByte('.')
			i++
		case '[':
			end := strings.IndexByte(rest[i:], ']')
			if end < 0 {
				return "", ldkerr.Client("InvalidPathError", "unbalanced [ in path "+expr)
			}
			idx := rest[i+1 : i+end]
			if _, err := strconv.Atoi(idx); err != nil && idx != "*" {
				return "", ldkerr.Client("InvalidPathError", "unsupported index "+idx+" in path "+expr)
			}
			if out.Len() > 0 {
				out.WriteByte('.')
			}
			out.WriteString(idx)
			i += end + 1
		default:
			out.WriteByte(rest[i])
			i++
		}
	}
	return out.String(), nil
}

// GetRaw is a thin convenience wrapper over gjson for callers that already
// hold a JSON byte slice.
func GetRaw(data []byte, gjsonPath string) gjson.Result {
	return gjson.GetBytes(data, gjsonPath)
}
