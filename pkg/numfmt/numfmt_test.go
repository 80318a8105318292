package numfmt

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
		err  bool
	}{
		{"0x1000", 0x1000, false},
		{"0X1000", 0x1000, false},
		{"0b1010", 0b1010, false},
		{"0B1010", 0b1010, false},
		{"010", 8, false}, // leading-zero octal
		{"1234", 1234, false},
		{"", 0, true},
		{"0xzz", 0, true},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if tc.err {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %d", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Parse(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParse32RejectsUnderscoredLiteral(t *testing.T) {
	v, err := Parse32("0x1_00000000")
	if err == nil {
		t.Fatalf("expected parse error for underscored literal, got %d", v)
	}
	v, err = Parse32("0xf00f0000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0xf00f0000 {
		t.Fatalf("got %#x, want 0xf00f0000", v)
	}
}
