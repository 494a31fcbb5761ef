// File: internal/knowledgegraph/content.go
package knowledgegraph

import (
	"bytes"

	json "github.com/json-iterator/go"
)

// editableKeys are the object fields that hold the editable text, in order
// of preference.
var editableKeys = []string{"content", "text", "body"}

// EditableText extracts the text an operator edits from opaque item data.
func EditableText(data []byte) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err == nil {
		for _, k := range editableKeys {
			if v, ok := obj[k]; ok && truthy(v) {
				if err := json.Unmarshal(v, &s); err == nil {
					return s
				}
				return string(v)
			}
		}
	}
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		return ""
	}
	return string(data)
}

// ApplyEdit writes content into item data. String data is replaced; for
// objects the first populated field of content, text and body is updated,
// falling back to setting content.
func ApplyEdit(data []byte, content string) ([]byte, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return json.Marshal(content)
	}

	obj := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(data)) > 0 {
		var existing map[string]json.RawMessage
		if err := json.Unmarshal(data, &existing); err == nil && existing != nil {
			obj = existing
		}
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	key := "content"
	for _, k := range editableKeys {
		if v, ok := obj[k]; ok && truthy(v) {
			key = k
			break
		}
	}
	obj[key] = encoded
	return json.Marshal(obj)
}

// truthy mirrors what a dashboard considers "set": not null, empty, false or zero.
func truthy(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", `""`, "false", "0":
		return false
	}
	return true
}
