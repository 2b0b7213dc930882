package checklist

import "testing"

func TestCondition_Match(t *testing.T) {
	tests := []struct {
		cond  string
		value string
		want  bool
	}{
		{"", "anything", true},
		{"", "", false},
		{"OUI", "OUI", true},
		{"OUI", "NON", false},
		{"NonConforme", " NonConforme ", true},
		{"=OUI", "OUI", true},
		{"!=OUI", "NON", true},
		{"!=OUI", "OUI", false},
		{">5", "6", true},
		{">5", "5", false},
		{">=5", "5", true},
		{"<2,5", "2", true},
		{"<=10", "10.0", true},
		{">5", "abc", false},
		{"A;B;C", "B", true},
		{"A;B;C", "D", false},
		{"Fuite; Corrosion", "Corrosion", true},
	}
	for _, tt := range tests {
		c, err := ParseCondition(tt.cond)
		if err != nil {
			t.Fatalf("ParseCondition(%q): %v", tt.cond, err)
		}
		if got := c.Match(tt.value); got != tt.want {
			t.Errorf("%q.Match(%q) = %v, want %v", tt.cond, tt.value, got, tt.want)
		}
	}
}

func TestParseCondition_Errors(t *testing.T) {
	for _, in := range []string{">", ">abc", "<=x", "!=", ";;"} {
		if _, err := ParseCondition(in); err == nil {
			t.Errorf("ParseCondition(%q) should fail", in)
		}
	}
}
