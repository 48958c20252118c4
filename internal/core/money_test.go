package core

import "testing"

func TestParseDecimalToPaise(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"0", 0, true}, // zero amount is legal
		{"0.00", 0, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{".", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToPaise(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		paise int64
		want  string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{123, "1.23"},
		{50000, "500.00"},
		{-70050, "-700.50"},
	}
	for _, tc := range cases {
		if got := (Money{Paise: tc.paise}).String(); got != tc.want {
			t.Fatalf("%d paise: expected %q, got %q", tc.paise, tc.want, got)
		}
	}
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	m := Money{Paise: 70050}
	b, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "700.50" {
		t.Fatalf("expected 700.50, got %s", b)
	}

	var fromNumber Money
	if err := fromNumber.UnmarshalJSON([]byte("700.5")); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if fromNumber.Paise != 70050 {
		t.Fatalf("expected 70050, got %d", fromNumber.Paise)
	}

	var fromString Money
	if err := fromString.UnmarshalJSON([]byte(`"700.50"`)); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if fromString.Paise != 70050 {
		t.Fatalf("expected 70050, got %d", fromString.Paise)
	}

	var neg Money
	if err := neg.UnmarshalJSON([]byte("-1")); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}
