package checklist

import (
	"slices"
	"testing"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Conforme;NonConforme", []string{"Conforme", "NonConforme"}},
		{" a ;\nc", []string{"a", "c"}},
		{"Conforme, avec réserve;Non conforme", []string{"Conforme, avec réserve", "Non conforme"}},
		{"a;;a;b", []string{"a", "b"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		if got := ParseList(tt.in); !slices.Equal(got, tt.want) {
			t.Errorf("ParseList(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFileTypes(t *testing.T) {
	got := ParseFileTypes(" jpg, pdf ;\npng,jpg")
	want := []string{"jpg", "pdf", "png"}
	if !slices.Equal(got, want) {
		t.Errorf("ParseFileTypes() = %q, want %q", got, want)
	}
}

func TestNormalizeFileTypes(t *testing.T) {
	got := NormalizeFileTypes([]string{".PDF", "jpg", " .Jpg ", ""})
	want := []string{"pdf", "jpg"}
	if !slices.Equal(got, want) {
		t.Errorf("NormalizeFileTypes() = %q, want %q", got, want)
	}
}
