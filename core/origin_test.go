package core

import "testing"

func TestOriginPolicy_Trusted(t *testing.T) {
	p := NewOriginPolicy([]string{"app.example.com", "localhost:3000", "https://Admin.Example.com"})

	tests := []struct {
		raw  string
		want bool
	}{
		{"https://app.example.com", true},
		{"https://app.example.com:8443", true},
		{"https://APP.example.com/some/page?x=1", true},
		{"app.example.com", true},
		{"http://localhost:3000", true},
		{"http://localhost:4000", false},
		{"http://localhost", false},
		{"https://admin.example.com", true},
		{"https://evil.example.com", false},
		{"https://app.example.com.evil.net", false},
		{"null", false},
		{"", false},
		{"   ", false},
	}

	for _, test := range tests {
		t.Run(test.raw, func(t *testing.T) {
			if got := p.Trusted(test.raw); got != test.want {
				t.Errorf("Trusted(%q) = %v, want %v", test.raw, got, test.want)
			}
		})
	}
}

func TestOriginPolicy_Classify(t *testing.T) {
	p := NewOriginPolicy([]string{"app.example.com"})

	if got := p.Classify("https://app.example.com"); got != FlowSession {
		t.Errorf("Classify(trusted) = %s", got)
	}
	if got := p.Classify("https://mobile.example.net"); got != FlowToken {
		t.Errorf("Classify(untrusted) = %s", got)
	}
	if got := p.Classify(""); got != FlowToken {
		t.Errorf("Classify(empty) = %s", got)
	}
}

func TestOriginPolicy_EmptyTrustsNothing(t *testing.T) {
	if NewOriginPolicy(nil).Trusted("https://app.example.com") {
		t.Error("empty policy should trust nothing")
	}
}

func TestNormalizeOrigin(t *testing.T) {
	tests := map[string]string{
		"https://App.Example.com/path": "app.example.com",
		"http://localhost:3000":        "localhost:3000",
		"":                             "",
		"null":                         "",
	}
	for raw, want := range tests {
		if got := NormalizeOrigin(raw); got != want {
			t.Errorf("NormalizeOrigin(%q) = %q, want %q", raw, got, want)
		}
	}
}
