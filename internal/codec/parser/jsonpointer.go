package parser

import (
	"encoding/json"
	"strconv"
	"strings"
)

// resolveJSONPointer implements the one operation the JSON-lines parser
// needs from RFC 6901 (spec §4.2's "resolve it" for a configured
// column-path). It is hand-rolled rather than imported: the third-party
// JSON-pointer libraries in the ecosystem ship a full JSON-Patch engine
// (add/remove/replace/test) to get this one read-only Resolve call,
// which is far more than a single-field lookup needs (see DESIGN.md).
func resolveJSONPointer(doc json.RawMessage, pointer string) (json.RawMessage, bool) {
	if pointer == "" {
		return doc, true
	}
	if pointer[0] != '/' {
		return nil, false
	}

	current := doc
	for _, rawTok := range strings.Split(pointer[1:], "/") {
		tok := strings.ReplaceAll(strings.ReplaceAll(rawTok, "~1", "/"), "~0", "~")

		var asObject map[string]json.RawMessage
		if err := json.Unmarshal(current, &asObject); err == nil {
			next, ok := asObject[tok]
			if !ok {
				return nil, false
			}
			current = next
			continue
		}

		var asArray []json.RawMessage
		if err := json.Unmarshal(current, &asArray); err == nil {
			idx, err := strconv.Atoi(tok)
			if err != nil || idx < 0 || idx >= len(asArray) {
				return nil, false
			}
			current = asArray[idx]
			continue
		}

		return nil, false
	}
	return current, true
}
