package format

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAbbreviate(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1_500_000, "1.5M"},
		{2_300, "2.3K"},
		{999, "999"},
		{1_000, "1.0K"},
		{1_000_000, "1.0M"},
		{1_999_999, "1.9M"},
		{2_399, "2.3K"},
		{12_345_678, "12.3M"},
		{999_999, "999.9K"},
		{2.5, "2.5"},
		{-4_500, "-4.5K"},
		{1_999.99999999, "1.9K"},
		{999_999.9999999, "999.9K"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := Abbreviate(tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestAbbreviateAbsent(t *testing.T) {
	assert.Nil(t, Abbreviate(0))
	assert.Nil(t, Abbreviate(math.NaN()))
	assert.Nil(t, AbbreviatePtr(nil))
	v := 1_200.0
	assert.Equal(t, "1.2K", *AbbreviatePtr(&v))
}

func TestPosition(t *testing.T) {
	v := 3.0
	assert.Equal(t, "3", *Position(&v))
	big := 12_000.0
	assert.Equal(t, "12000", *Position(&big))
	zero := 0.0
	assert.Nil(t, Position(&zero))
	assert.Nil(t, Position(nil))
	inf := math.Inf(1)
	assert.Nil(t, Position(&inf))
}
