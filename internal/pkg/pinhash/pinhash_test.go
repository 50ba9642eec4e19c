package pinhash

import "testing"

func TestHashAndVerify(t *testing.T) {
	hash, err := Hash("4821")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !Verify("4821", hash) {
		t.Fatal("expected PIN to verify against its hash")
	}
	if Verify("4822", hash) {
		t.Fatal("expected wrong PIN to fail")
	}
	if Verify("4821", "") {
		t.Fatal("expected empty hash to never verify")
	}
}

func TestHashesAreSaltedPerRecord(t *testing.T) {
	a, err := Hash("1234")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	b, err := Hash("1234")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if a == b {
		t.Fatal("expected two hashes of the same PIN to differ")
	}
}
