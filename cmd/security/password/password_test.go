package password

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHashAndVerify_OK(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := cfg.Verify(h, "secret1")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatalf("expected match")
	}
}

func TestHash_IsSalted(t *testing.T) {
	cfg := testConfig()

	a, err := cfg.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	b, err := cfg.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct hashes for the same password")
	}
}

func TestVerify_WrongPassword(t *testing.T) {
	cfg := testConfig()

	h, err := cfg.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	ok, err := cfg.Verify(h, "secret2")
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatalf("expected mismatch")
	}
}

func TestVerify_InvalidHash(t *testing.T) {
	cfg := testConfig()

	for _, in := range []string{
		"not-a-hash",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHQ$a2V5a2V5a2V5a2V5a2V5a2V5",
		"$2a$99$abcdefghijklmnopqrstuv",
	} {
		ok, err := cfg.Verify(in, "whatever")
		if !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("Verify(%q): expected ErrInvalidHash, got %v", in, err)
		}
		if ok {
			t.Fatalf("Verify(%q): expected false", in)
		}
	}
}

func TestVerify_RejectsOversizedParams(t *testing.T) {
	strong := testConfig()
	strong.Params.MemoryKiB = 64 * 1024

	h, err := strong.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	weak := testConfig()
	if _, err := weak.Verify(h, "secret1"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash for memory far above limits, got %v", err)
	}
}

func TestVerify_LegacyBcrypt(t *testing.T) {
	cfg := testConfig()

	legacy, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	ok, err := cfg.Verify(string(legacy), "secret1")
	if err != nil || !ok {
		t.Fatalf("expected legacy match, ok=%v err=%v", ok, err)
	}
	ok, err = cfg.Verify(string(legacy), "secret2")
	if err != nil || ok {
		t.Fatalf("expected legacy mismatch, ok=%v err=%v", ok, err)
	}
}

func TestNeedsRehash(t *testing.T) {
	cfg := testConfig()

	current, err := cfg.Hash("secret1")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	legacy, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	stronger := cfg
	stronger.Params.Iterations = 2

	cases := []struct {
		name string
		cfg  Config
		hash string
		want bool
	}{
		{name: "current params", cfg: cfg, hash: current, want: false},
		{name: "bcrypt", cfg: cfg, hash: string(legacy), want: true},
		{name: "weaker than config", cfg: stronger, hash: current, want: true},
		{name: "garbage", cfg: cfg, hash: "nope", want: false},
	}
	for _, tc := range cases {
		if got := tc.cfg.NeedsRehash(tc.hash); got != tc.want {
			t.Fatalf("%s: NeedsRehash=%v want=%v", tc.name, got, tc.want)
		}
	}
}

func TestValidate_MinMax(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.MinLength = 6
	cfg.Policy.MaxLength = 16

	err := cfg.Validate("12345")
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
	var le LengthError
	if !errors.As(err, &le) || le.Limit != 6 {
		t.Fatalf("expected LengthError with limit 6, got %#v", err)
	}

	if err := cfg.Validate("this password is definitely too long"); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}

	// Runes, not bytes.
	if err := cfg.Validate("ééééé"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected rune-based length check, got %v", err)
	}
	if err := cfg.Validate("secret"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestPolicy_RejectVeryWeak(t *testing.T) {
	cfg := testConfig()
	cfg.Policy.RejectVeryWeak = true

	for _, pw := range []string{"password", "111111", "aaaaaaaa", "qwerty123"} {
		if err := cfg.Validate(pw); !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("Validate(%q): expected ErrWeakPassword, got %v", pw, err)
		}
	}
	if err := cfg.Validate("a-very-ok-pass"); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}
