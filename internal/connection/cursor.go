package connection

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const cursorVersion = 1

type cursorPayload struct {
	Version  int    `json:"v"`
	TypeName string `json:"t"`
	Index    int    `json:"i"`
}

// EncodeCursor builds an opaque cursor for the row at index of a result over
// typeName.
func EncodeCursor(typeName string, index int) string {
	data, err := json.Marshal(cursorPayload{Version: cursorVersion, TypeName: typeName, Index: index})
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeCursor parses a cursor produced by EncodeCursor.
func DecodeCursor(raw string) (typeName string, index int, err error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", 0, fmt.Errorf("invalid cursor: %w", err)
	}
	var payload cursorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", 0, fmt.Errorf("invalid cursor format: expected offset cursor")
	}
	if payload.Version != cursorVersion {
		return "", 0, fmt.Errorf("invalid cursor format: unsupported version %d", payload.Version)
	}
	if payload.TypeName == "" {
		return "", 0, fmt.Errorf("invalid cursor: missing type")
	}
	if payload.Index < 0 {
		return "", 0, fmt.Errorf("invalid cursor: negative index")
	}
	return payload.TypeName, payload.Index, nil
}

// ValidateCursor decodes raw and confirms it was issued for expectedType.
func ValidateCursor(expectedType, raw string) (int, error) {
	typeName, index, err := DecodeCursor(raw)
	if err != nil {
		return 0, err
	}
	if typeName != expectedType {
		return 0, fmt.Errorf("cursor type mismatch: expected %s, got %s", expectedType, typeName)
	}
	return index, nil
}
