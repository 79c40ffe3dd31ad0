package connection

import (
	"encoding/base64"
	"testing"
)

func TestEncodeDecode_Roundtrip(t *testing.T) {
	tests := []struct {
		name     string
		typeName string
		index    int
	}{
		{name: "first row", typeName: "Child", index: 0},
		{name: "later row", typeName: "Attachment", index: 41},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := EncodeCursor(tt.typeName, tt.index)
			if encoded == "" {
				t.Fatal("EncodeCursor returned empty string")
			}

			gotType, gotIndex, err := DecodeCursor(encoded)
			if err != nil {
				t.Fatalf("DecodeCursor error: %v", err)
			}
			if gotType != tt.typeName {
				t.Errorf("typeName: got %q, want %q", gotType, tt.typeName)
			}
			if gotIndex != tt.index {
				t.Errorf("index: got %d, want %d", gotIndex, tt.index)
			}
		})
	}
}

func TestEncodeCursor_Format(t *testing.T) {
	data, err := base64.StdEncoding.DecodeString(EncodeCursor("Child", 3))
	if err != nil {
		t.Fatalf("cursor is not base64: %v", err)
	}
	if got, want := string(data), `{"v":1,"t":"Child","i":3}`; got != want {
		t.Errorf("payload: got %s, want %s", got, want)
	}
}

func TestDecodeCursor_Errors(t *testing.T) {
	encode := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	tests := []struct {
		name  string
		input string
	}{
		{"invalid base64", "not-valid-base64!!!"},
		{"invalid json", encode("not-json")},
		{"wrong version", encode(`{"v":2,"t":"Child","i":1}`)},
		{"missing type", encode(`{"v":1,"i":1}`)},
		{"negative index", encode(`{"v":1,"t":"Child","i":-1}`)},
		{"array payload", encode(`["Child",1]`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeCursor(tt.input); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestValidateCursor(t *testing.T) {
	index, err := ValidateCursor("Child", EncodeCursor("Child", 5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if index != 5 {
		t.Errorf("index: got %d, want 5", index)
	}

	if _, err := ValidateCursor("Child", EncodeCursor("Parent", 5)); err == nil {
		t.Fatal("expected type mismatch error")
	}
}
