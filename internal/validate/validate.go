package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mehmetkoksal-w/driftwatch/internal/jsonc"
	"github.com/mehmetkoksal-w/driftwatch/schemas"
)

// JSONC validates a JSONC file against an embedded schema.
func JSONC(path string, schemaName string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return Bytes(jsonc.Clean(data), schemaName, path)
}

// JSON validates a standard JSON file.
func JSON(path string, schemaName string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return Bytes(bytes.TrimSpace(data), schemaName, path)
}

// Bytes validates raw JSON already in memory. The source name is only
// used in error messages.
func Bytes(data []byte, schemaName, source string) error {
	schema, err := schemas.Compile(schemaName)
	if err != nil {
		return err
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("decode %s: %w", source, err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%s invalid: %w", source, err)
	}
	return nil
}
