package crypto

import (
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func fastArgon2() *Argon2 {
	return &Argon2{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
}

// Requirement: Hash produces a self-describing argon2id string with a fresh salt.
func TestArgon2_Hash(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{name: "simple", password: "testPassword123"},
		{name: "empty password", password: ""},
		{name: "long password", password: strings.Repeat("a", 128)},
		{name: "unicode", password: "contraseña🔐"},
		{name: "null byte", password: "pass\x00word"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			a := fastArgon2()

			// Act
			hash, err := a.Hash(test.password)

			// Assert
			if err != nil {
				t.Fatalf("Hash() error = %v", err)
			}
			if !strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$") {
				t.Errorf("Hash() has unexpected prefix: %q", hash)
			}
			if parts := strings.Split(hash, "$"); len(parts) != 6 {
				t.Errorf("Hash() should have 6 parts, got %d", len(parts))
			}
		})
	}
}

// Requirement: Two hashes of the same password never collide.
func TestArgon2_Hash_UniqueSalts(t *testing.T) {
	a := fastArgon2()

	hash1, _ := a.Hash("samePassword")
	hash2, _ := a.Hash("samePassword")

	if hash1 == hash2 {
		t.Error("Hash() should generate different hashes with unique salts")
	}
}

// Requirement: Verify accepts only the exact password.
func TestArgon2_Verify(t *testing.T) {
	tests := []struct {
		name    string
		attempt string
		wantOk  bool
	}{
		{name: "correct password", attempt: "correctPassword", wantOk: true},
		{name: "wrong password", attempt: "wrongPassword", wantOk: false},
		{name: "case sensitive", attempt: "correctpassword", wantOk: false},
		{name: "extra character", attempt: "correctPassword1", wantOk: false},
		{name: "empty", attempt: "", wantOk: false},
	}

	a := fastArgon2()
	hash, err := a.Hash("correctPassword")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ok, err := a.Verify(test.attempt, hash)

			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if ok != test.wantOk {
				t.Errorf("Verify() = %v, want %v", ok, test.wantOk)
			}
		})
	}
}

// Requirement: Malformed hashes are reported as errors, never as a match.
func TestArgon2_Verify_InvalidHashes(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{name: "empty", hash: ""},
		{name: "invalid format", hash: "invalid-hash"},
		{name: "too few parts", hash: "$argon2id$v=19$m=65536,t=3,p=2$salt"},
		{name: "argon2i", hash: "$argon2i$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA"},
		{name: "bad version", hash: "$argon2id$v=16$m=65536,t=3,p=2$c2FsdA$aGFzaA"},
		{name: "zero parallelism", hash: "$argon2id$v=19$m=65536,t=3,p=0$c2FsdA$aGFzaA"},
		{name: "bad salt", hash: "$argon2id$v=19$m=65536,t=3,p=2$!!!$aGFzaA"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ok, err := fastArgon2().Verify("password", test.hash)

			if err == nil {
				t.Errorf("Verify() should return error for %s", test.name)
			}
			if ok {
				t.Error("Verify() must not report a match for an invalid hash")
			}
		})
	}
}

// Requirement: Verify reads parameters from the hash, not from the handler.
func TestArgon2_Verify_AcrossParameters(t *testing.T) {
	old := &Argon2{Memory: 512, Iterations: 2, Parallelism: 1, SaltLength: 8, KeyLength: 16}
	hash, _ := old.Hash("test")

	ok, err := fastArgon2().Verify("test", hash)

	if err != nil || !ok {
		t.Fatalf("Verify() = %v, %v; want true, nil", ok, err)
	}
}

// Requirement: NeedsRehash flags hashes made with other parameters.
func TestArgon2_NeedsRehash(t *testing.T) {
	current := fastArgon2()
	currentHash, _ := current.Hash("pw")
	weaker := &Argon2{Memory: 512, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	weakerHash, _ := weaker.Hash("pw")

	tests := []struct {
		name string
		hash string
		want bool
	}{
		{name: "current parameters", hash: currentHash, want: false},
		{name: "weaker parameters", hash: weakerHash, want: true},
		{name: "garbage", hash: "nope", want: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := current.NeedsRehash(test.hash); got != test.want {
				t.Errorf("NeedsRehash() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestArgon2_New_Defaults(t *testing.T) {
	a := NewArgon2()

	if a.Memory != 64*1024 || a.Iterations != 3 || a.Parallelism != 2 || a.SaltLength != 16 || a.KeyLength != 32 {
		t.Errorf("NewArgon2() = %+v, want OWASP defaults", *a)
	}
}

func TestArgon2_Concurrent(t *testing.T) {
	a := fastArgon2()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			password := strings.Repeat("a", i+1)
			hash, err := a.Hash(password)
			if err != nil {
				t.Errorf("Hash() error = %v", err)
				return
			}
			if ok, err := a.Verify(password, hash); err != nil || !ok {
				t.Errorf("Verify() = %v, %v", ok, err)
			}
		}(i)
	}

	wg.Wait()
}

// Requirement: Bcrypt verifies its own hashes and tracks cost changes.
func TestBcrypt_HashVerifyRehash(t *testing.T) {
	b := NewBcrypt(bcrypt.MinCost)

	hash, err := b.Hash("hunter22")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if ok, err := b.Verify("hunter22", hash); err != nil || !ok {
		t.Errorf("Verify(correct) = %v, %v", ok, err)
	}
	if ok, err := b.Verify("hunter23", hash); err != nil || ok {
		t.Errorf("Verify(wrong) = %v, %v", ok, err)
	}
	if _, err := b.Verify("hunter22", "not-a-bcrypt-hash"); err == nil {
		t.Error("Verify() should fail for malformed hash")
	}
	if b.NeedsRehash(hash) {
		t.Error("NeedsRehash() should be false at the same cost")
	}
	if !NewBcrypt(bcrypt.MinCost + 1).NeedsRehash(hash) {
		t.Error("NeedsRehash() should be true after a cost change")
	}
}

func TestNewBcrypt_ClampsCost(t *testing.T) {
	if got := NewBcrypt(1).Cost; got != bcrypt.DefaultCost {
		t.Errorf("NewBcrypt(1).Cost = %d, want %d", got, bcrypt.DefaultCost)
	}
}

func FuzzArgon2_HashVerify(f *testing.F) {
	f.Add("")
	f.Add("test")
	f.Add("p@ssw0rd!#$%")
	f.Add("pass\x00word")

	f.Fuzz(func(t *testing.T, password string) {
		a := fastArgon2()

		hash, err := a.Hash(password)
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}

		ok, err := a.Verify(password, hash)
		if err != nil || !ok {
			t.Fatalf("Verify() = %v, %v; want true", ok, err)
		}
	})
}
