package checksum

import (
	"io"
	"strings"
	"testing"
)

func TestSumKnownValue(t *testing.T) {
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := Sum([]byte("hello")); got != want {
		t.Errorf("Sum = %s", got)
	}
}

func TestDigestMatchesSum(t *testing.T) {
	d := NewDigest()
	if _, err := io.Copy(io.Discard, d.Tee(strings.NewReader("hello"))); err != nil {
		t.Fatal(err)
	}
	if d.Hex() != Sum([]byte("hello")) {
		t.Errorf("Digest.Hex = %s", d.Hex())
	}
	if d.Size() != 5 {
		t.Errorf("Size = %d, want 5", d.Size())
	}
}
