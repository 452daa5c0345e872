package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		text   string
		want   int64
		wantOK bool
	}{
		{"9,600,000", 9600000, true},
		{"2.2 million", 2200000, true},
		{"2,165,423 (2021)", 2165423, true},
		{"8,900,000[1]", 8900000, true},
		{"[3] 1,200", 1200, true},
		{"5.4M", 5400000, true},
		{"750k", 750000, true},
		{"1.2 bn", 1200000000, true},
		{"3 Thousand", 3000, true},
		{"about 12345 visitors", 12345, true},
		{"4,000,000 (2019) 3,000,000 (2020)", 4000000, true},
		{"12 museums", 12, true},
		{"0", 0, true},
		{"35 m (115 ft)", 35, true},
		{"120 k visitors", 120, true},
		{"9223372036854774784", 9223372036854774784, true},
		{"9223372036854775807", 0, false},
		{"9223372036854775808", 0, false},
		{"", 0, false},
		{"unknown", 0, false},
		{"[1]", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseQuantity(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
