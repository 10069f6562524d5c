package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	cases := map[int64]string{
		0:        "0",
		7:        "7",
		999:      "999",
		1000:     "1,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
	}
	for n, want := range cases {
		assert.Equal(t, want, FormatNumber(n))
	}
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "38s", FormatDuration(38*time.Second))
	assert.Equal(t, "4m 2s", FormatDuration(4*time.Minute+2*time.Second))
	assert.Equal(t, "4h 12m", FormatDuration(4*time.Hour+12*time.Minute))
	assert.Equal(t, "0s", FormatDuration(-time.Second))
}
