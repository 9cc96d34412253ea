package processor

import "testing"

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2019 Toyota Corolla 1.6 Petrol ", "2019 toyota corolla 1.6 petrol"},
		{"  FORD   Focus\t2017 ", "ford focus 2017"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestTitleSimilarity(t *testing.T) {
	// Cosmetic whitespace and case differences must score as identical.
	a := "2019 Toyota Corolla 1.6 Petrol"
	b := "2019 Toyota Corolla 1.6 Petrol "
	if sim := TitleSimilarity(a, b); sim != 1.0 {
		t.Errorf("similarity of trailing-space variant = %f; want 1.0", sim)
	}

	c := "2019 TOYOTA  corolla 1.6 petrol"
	if sim := TitleSimilarity(a, c); sim != 1.0 {
		t.Errorf("similarity of case/space variant = %f; want 1.0", sim)
	}

	// A one-character slip must still clear the duplicate threshold.
	d := "2019 Toyota Corola 1.6 Petrol"
	if sim := TitleSimilarity(a, d); sim < DefaultSimilarityThreshold {
		t.Errorf("similarity of typo variant = %f; want >= %f", sim, DefaultSimilarityThreshold)
	}

	e := "2012 Renault Clio 1.2 Diesel"
	if sim := TitleSimilarity(a, e); sim >= DefaultSimilarityThreshold {
		t.Errorf("similarity of unrelated titles = %f; want < %f", sim, DefaultSimilarityThreshold)
	}
}
