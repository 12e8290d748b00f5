package crypto

import (
	"strings"
	"testing"
)

func TestNewIDGenerator_Validation(t *testing.T) {
	tests := []struct {
		name     string
		alphabet string
		wantErr  error
	}{
		{name: "default alphabet", alphabet: "", wantErr: nil},
		{name: "hex alphabet", alphabet: "0123456789abcdef", wantErr: nil},
		{name: "too short", alphabet: "abc", wantErr: ErrAlphabetTooShort},
		{name: "too long", alphabet: strings.Repeat("a", 256), wantErr: ErrAlphabetTooLong},
		{name: "non ascii", alphabet: "abcdefgñ", wantErr: ErrAlphabetNotASCII},
		{name: "duplicate symbol", alphabet: "abcdefgg", wantErr: ErrDuplicateSymbol},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewIDGenerator(test.alphabet, 0)

			if err != test.wantErr {
				t.Errorf("NewIDGenerator() error = %v, want %v", err, test.wantErr)
			}
		})
	}
}

func TestMaskFor(t *testing.T) {
	tests := []struct {
		n    int
		want byte
	}{
		{n: 8, want: 7},
		{n: 10, want: 15},
		{n: 16, want: 15},
		{n: 64, want: 63},
		{n: 65, want: 127},
		{n: 255, want: 255},
	}

	for _, test := range tests {
		if got := maskFor(test.n); got != test.want {
			t.Errorf("maskFor(%d) = %d, want %d", test.n, got, test.want)
		}
	}
}

// Requirement: Generated IDs have the configured size and only alphabet symbols.
func TestIDGenerator_Generate(t *testing.T) {
	tests := []struct {
		name     string
		alphabet string
		size     int
	}{
		{name: "default", alphabet: "", size: 0},
		{name: "digits", alphabet: "0123456789", size: 12},
		{name: "odd alphabet", alphabet: "abcdefghijk", size: 40},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g, err := NewIDGenerator(test.alphabet, test.size)
			if err != nil {
				t.Fatalf("NewIDGenerator() error = %v", err)
			}
			alphabet, size := test.alphabet, test.size
			if alphabet == "" {
				alphabet = defaultAlphabet
			}
			if size == 0 {
				size = defaultSize
			}

			id, err := g.Generate()

			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}
			if len(id) != size {
				t.Errorf("len(id) = %d, want %d", len(id), size)
			}
			for _, c := range id {
				if !strings.ContainsRune(alphabet, c) {
					t.Errorf("id %q contains %q outside alphabet", id, c)
				}
			}
		})
	}
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 5000; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID() error = %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q after %d iterations", id, i)
		}
		seen[id] = true
	}
}
