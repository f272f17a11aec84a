// Package jsonc reads the relaxed JSON accepted in driftwatch config
// files: line and block comments, plus trailing commas in objects and
// arrays. Clean output is strict JSON suitable for schema validation.
package jsonc

import (
	"encoding/json"
	"fmt"
	"os"

	mmjsonc "github.com/muhammadmuzzammil1998/jsonc"
)

// Clean converts JSONC input to strict JSON. The upstream decoder only
// removes comments; trailing commas are stripped here.
func Clean(data []byte) []byte {
	return stripTrailingCommas(mmjsonc.ToJSON(data))
}

// DecodeFile loads a JSONC file into dest.
func DecodeFile(path string, dest any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(Clean(b), dest); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// stripTrailingCommas drops any comma whose next non-whitespace byte
// closes an object or array. String contents are never touched.
func stripTrailingCommas(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		switch {
		case inString:
			out = append(out, c)
			if c == '\\' && i+1 < len(data) {
				i++
				out = append(out, data[i])
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
			out = append(out, c)
		case c == ',':
			j := i + 1
			for j < len(data) && isSpace(data[j]) {
				j++
			}
			if j < len(data) && (data[j] == '}' || data[j] == ']') {
				continue
			}
			out = append(out, c)
		default:
			out = append(out, c)
		}
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
