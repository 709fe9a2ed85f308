package helpers

import "testing"

func TestScaleAmount(t *testing.T) {
	tests := []struct {
		name        string
		amount      uint64
		srcDecimals uint8
		dstDecimals uint8
		want        uint64
	}{
		{"same decimals", 9_490_500, 6, 6, 9_490_500},
		{"scale up", 1, 6, 8, 100},
		{"scale down exact", 150_00, 8, 6, 150},
		{"scale down truncates", 1_234_567, 8, 6, 12_345},
		{"scale down to zero", 99, 8, 6, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScaleAmount(tt.amount, tt.srcDecimals, tt.dstDecimals)
			if got != tt.want {
				t.Errorf("ScaleAmount(%d, %d, %d) = %d, want %d", tt.amount, tt.srcDecimals, tt.dstDecimals, got, tt.want)
			}
		})
	}
}
