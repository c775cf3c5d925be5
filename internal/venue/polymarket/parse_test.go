package polymarket

import "testing"

func TestParseBracketName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		title   string
		ok      bool
		lowerF  float64
		upperF  float64
		isUnder bool
		isOver  bool
	}{
		{"58-59°F", true, 58, 59, false, false},
		{"58–59°F", true, 58, 59, false, false}, // en dash
		{"58 - 59", true, 58, 59, false, false},
		{"-3--2°F", true, -3, -2, false, false},
		{"< 40°F", true, 0, 40, true, false},
		{"<40", true, 0, 40, true, false},
		{"below 40°F", true, 0, 40, true, false},
		{"≥ 90°F", true, 90, 0, false, true},
		{">=90", true, 90, 0, false, true},
		{"90°F or above", true, 90, 0, false, true},
		{"above 90", true, 90, 0, false, true},
		{"Will it rain?", false, 0, 0, false, false},
		{"59-58°F", false, 0, 0, false, false}, // inverted bounds
		{"", false, 0, 0, false, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.title, func(t *testing.T) {
			t.Parallel()
			b, ok := parseBracketName("m1", tc.title)
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if !ok {
				return
			}
			if b.LowerF != tc.lowerF || b.UpperF != tc.upperF || b.IsUnder != tc.isUnder || b.IsOver != tc.isOver {
				t.Errorf("parsed = %+v", b)
			}
			if b.MarketID != "m1" || b.Name == "" {
				t.Errorf("metadata = %+v", b)
			}
		})
	}
}
