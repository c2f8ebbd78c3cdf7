package main

import "testing"

func TestParseBound(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"-180,-85,180,85", true},
		{" 5.9, 45.8, 10.5 ,47.8", true},
		{"1,2,3", false},
		{"10,0,0,10", false},
		{"a,b,c,d", false},
	}
	for _, tt := range tests {
		b, err := parseBound(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("parseBound(%q) err = %v", tt.in, err)
		}
		if tt.ok && (b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1]) {
			t.Errorf("parseBound(%q) = %v", tt.in, b)
		}
	}
}
