package sites

import "testing"

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		nil_ bool
	}{
		{"€12,500", 12500, false},
		{"12.500 EUR", 12500, false},
		{"€950", 950, false},
		{"POA", 0, true},
		{"", 0, true},
		{"Price on application", 0, true},
	}

	for _, tt := range tests {
		got := ParsePrice(tt.raw)
		if tt.nil_ {
			if got != nil {
				t.Errorf("ParsePrice(%q) = %d; want nil", tt.raw, *got)
			}
			continue
		}
		if got == nil {
			t.Errorf("ParsePrice(%q) = nil; want %d", tt.raw, tt.want)
			continue
		}
		if *got != tt.want {
			t.Errorf("ParsePrice(%q) = %d; want %d", tt.raw, *got, tt.want)
		}
	}
}

func TestParseMileage(t *testing.T) {
	tests := []struct {
		raw  string
		want int
		nil_ bool
	}{
		{"85,000 km", 85000, false},
		{"120000 km", 120000, false},
		{"50,000 miles", 80467, false},
		{"low mileage", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got := ParseMileage(tt.raw)
		if tt.nil_ {
			if got != nil {
				t.Errorf("ParseMileage(%q) = %d; want nil", tt.raw, *got)
			}
			continue
		}
		if got == nil {
			t.Errorf("ParseMileage(%q) = nil; want %d", tt.raw, tt.want)
			continue
		}
		if *got != tt.want {
			t.Errorf("ParseMileage(%q) = %d; want %d", tt.raw, *got, tt.want)
		}
	}
}

func TestParseTitle(t *testing.T) {
	tests := []struct {
		title     string
		wantMake  string
		wantModel string
		wantYear  int // 0 means nil expected
	}{
		{"Toyota Corolla 2019 1.6 Petrol", "Toyota", "Corolla", 2019},
		{"Volkswagen Golf GTI 2018", "Volkswagen", "Golf GTI", 2018},
		{"2019 Toyota Corolla", "", "", 2019},
		{"Ford Focus 1.5 TDCi", "Ford", "Focus", 0},
		{"", "", "", 0},
		{"€9,999 bargain", "", "", 0},
	}

	for _, tt := range tests {
		mk, model, year := ParseTitle(tt.title)
		if mk != tt.wantMake || model != tt.wantModel {
			t.Errorf("ParseTitle(%q) = (%q, %q); want (%q, %q)",
				tt.title, mk, model, tt.wantMake, tt.wantModel)
		}
		if tt.wantYear == 0 {
			if year != nil {
				t.Errorf("ParseTitle(%q) year = %d; want nil", tt.title, *year)
			}
		} else if year == nil || *year != tt.wantYear {
			t.Errorf("ParseTitle(%q) year = %v; want %d", tt.title, year, tt.wantYear)
		}
	}
}

func TestDetectFuel(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"2019 Nissan Leaf Electric", "Electric"},
		{"Toyota Prius hybrid automatic", "Hybrid"},
		{"1.6 diesel manual", "Diesel"},
		{"nice family car", ""},
	}
	for _, tt := range tests {
		if got := DetectFuel(tt.text); got != tt.want {
			t.Errorf("DetectFuel(%q) = %q; want %q", tt.text, got, tt.want)
		}
	}
}

func TestDetectTransmission(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"5 speed manual", "Manual"},
		{"Automatic estate", "Automatic"},
		{"well maintained", ""},
	}
	for _, tt := range tests {
		if got := DetectTransmission(tt.text); got != tt.want {
			t.Errorf("DetectTransmission(%q) = %q; want %q", tt.text, got, tt.want)
		}
	}
}
