package xlog

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []string{"0/0", "1/0", "16/B374178", "FFFFFFFF/FFFFFFFF", "2/C8000000"}
	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			p, err := Parse(s)
			if err != nil {
				t.Fatalf("Parse(%q): %v", s, err)
			}
			got := p.String()
			if got != s {
				t.Fatalf("round trip mismatch: Parse(%q).String() = %q", s, got)
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	for _, s := range []string{"", "nohyphen", "1/2/3", "zz/11"} {
		if _, err := Parse(s); err == nil {
			t.Fatalf("Parse(%q): expected error", s)
		}
	}
}

func TestSegmentArithmetic(t *testing.T) {
	const segSize = 16 * 1024 * 1024
	p, _ := Parse("0/1000000")
	if got, want := p.SegmentNumber(segSize), uint64(1); got != want {
		t.Fatalf("SegmentNumber = %d, want %d", got, want)
	}
	p2, _ := Parse("0/10000000")
	if got, want := p2.SegmentNumber(segSize), uint64(16); got != want {
		t.Fatalf("SegmentNumber = %d, want %d", got, want)
	}
	if got, want := p2.PrecedingSegmentStart(segSize), RecPtr(0xF000000); got != want {
		t.Fatalf("PrecedingSegmentStart = %s, want %s", got, want)
	}
}

func TestSegmentFileName(t *testing.T) {
	name := SegmentFileName(1, 7, 16*1024*1024)
	if name != "000000010000000000000007" {
		t.Fatalf("SegmentFileName = %q", name)
	}
	name2 := SegmentFileName(2, 8, 16*1024*1024)
	if name2 != "000000020000000000000008" {
		t.Fatalf("SegmentFileName = %q", name2)
	}
}

func TestMin(t *testing.T) {
	a, b := RecPtr(10), RecPtr(5)
	if Min(a, b) != 5 {
		t.Fatalf("Min should pick smaller (earlier) pointer")
	}
}
