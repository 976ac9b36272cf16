package password

import (
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Argon2 {
	t.Helper()

	a, err := NewArgon2(Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return a
}

func TestHashVerify(t *testing.T) {
	a := testHasher(t)

	encoded, err := a.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=") {
		t.Fatalf("not PHC encoded: %s", encoded)
	}

	ok, err := a.Verify("correct-horse-battery", encoded)
	if err != nil || !ok {
		t.Fatalf("verify: ok=%v err=%v", ok, err)
	}
	ok, err = a.Verify("wrong-password-here", encoded)
	if err != nil || ok {
		t.Fatalf("wrong password: ok=%v err=%v", ok, err)
	}
}

func TestHashUniqueSalts(t *testing.T) {
	a := testHasher(t)

	first, err := a.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := a.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatal("two hashes of the same password must differ by salt")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	a := testHasher(t)

	if _, err := a.Hash("short"); err == nil {
		t.Fatal("expected error for sub-minimum password")
	}
}

func TestVerifyRejectsMalformed(t *testing.T) {
	a := testHasher(t)

	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=8192,t=1,p=1$notbase64!!$also-not",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
	} {
		if _, err := a.Verify("correct-horse-battery", encoded); err == nil {
			t.Fatalf("expected error for %q", encoded)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := testHasher(t)
	encoded, err := weak.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	if weak.NeedsUpgrade(encoded) {
		t.Fatal("hash at current parameters must not need upgrade")
	}

	stronger, err := NewArgon2(Config{
		Memory:      16 * 1024,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	if !stronger.NeedsUpgrade(encoded) {
		t.Fatal("hash below current parameters must need upgrade")
	}

	if stronger.NeedsUpgrade("garbage") {
		t.Fatal("unparsable hash reports no upgrade; Verify rejects it instead")
	}
}

func TestNewArgon2Validation(t *testing.T) {
	cases := []Config{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16},
		{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range cases {
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
