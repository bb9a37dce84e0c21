package versioning

import "testing"

func TestProjectFingerprintDeterministicAndDistinct(t *testing.T) {
	a, err := ProjectFingerprint("/tmp/project-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 13 {
		t.Fatalf("expected a 13-character fingerprint, got %q (%d)", a, len(a))
	}

	again, err := ProjectFingerprint("/tmp/project-a")
	if err != nil {
		t.Fatal(err)
	}
	if a != again {
		t.Fatalf("expected the same workdir to fingerprint identically, got %q vs %q", a, again)
	}

	b, err := ProjectFingerprint("/tmp/project-b")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("expected distinct workdirs to fingerprint differently")
	}

	rel, err := ProjectFingerprint("project-a")
	if err != nil {
		t.Fatal(err)
	}
	if rel == a {
		t.Fatal("expected a relative path to resolve to an absolute one before hashing, not match by accident")
	}
}
