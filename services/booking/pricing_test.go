package booking

import "testing"

func TestParsePrice(t *testing.T) {
	tests := []struct {
		price   string
		want    int64
		wantErr bool
	}{
		{"100.00", 10000, false},
		{"100", 10000, false},
		{"0.5", 50, false},
		{" 42.50 ", 4250, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"10.005", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePrice(tt.price)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePrice(%q): expected error, got %d", tt.price, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePrice(%q): unexpected error %v", tt.price, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePrice(%q) = %d, want %d", tt.price, got, tt.want)
		}
	}
}

func TestPlatformFeeCents(t *testing.T) {
	tests := []struct {
		amount int64
		pct    float64
		want   int64
	}{
		{10000, 0.12, 1200},
		{9999, 0.12, 1200}, // 1199.88 rounds to 1200
		{100, 0.12, 12},
		{1, 0.12, 0}, // 0.12 rounds down
		{10000, 0, 0},
	}
	for _, tt := range tests {
		if got := PlatformFeeCents(tt.amount, tt.pct); got != tt.want {
			t.Errorf("PlatformFeeCents(%d, %v) = %d, want %d", tt.amount, tt.pct, got, tt.want)
		}
	}
}
