package textnorm

import (
	"slices"
	"testing"

	"golang.org/x/text/unicode/norm"
)

func TestNFC(t *testing.T) {
	decomposed := norm.NFD.String("중1수학")
	if decomposed == "중1수학" {
		t.Fatal("test input should be decomposed")
	}
	if got := NFC("  " + decomposed + "\n"); got != "중1수학" {
		t.Errorf("NFC() = %q, want 중1수학", got)
	}
}

func TestNFCAll(t *testing.T) {
	got := NFCAll([]string{" 1-1-1", "", "  ", "1-1-3 "})
	if !slices.Equal(got, []string{"1-1-1", "1-1-3"}) {
		t.Errorf("NFCAll() = %v", got)
	}
}
