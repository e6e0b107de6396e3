package numbering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	issued := time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		template string
		counter  int64
		padding  int
		want     string
	}{
		{"year prefix with trailing separator", "INV-%YYYY%-", 1, 4, "INV-2024-0001"},
		{"second reservation", "INV-%YYYY%-", 2, 4, "INV-2024-0002"},
		{"separator appended when missing", "INV%YY%%MM%", 7, 3, "INV2406-007"},
		{"all placeholders", "%DD%/%MM%/%YYYY%", 12, 2, "01/06/2024-12"},
		{"counter wider than padding", "EST-", 12345, 3, "EST-12345"},
		{"zero padding", "CN-", 5, 0, "CN-5"},
		{"empty template", "", 9, 4, "0009"},
		{"unknown placeholder kept verbatim", "INV-%BRANCH%-%YYYY%", 3, 4, "INV-%BRANCH%-2024-0003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.template, issued, tt.counter, tt.padding))
		})
	}
}

func TestRenderPrefix_ShortYearDoesNotConsumeLongYear(t *testing.T) {
	issued := time.Date(2009, time.January, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2009|09", RenderPrefix("%YYYY%|%YY%", issued))
}

func TestUnknownPlaceholders(t *testing.T) {
	assert.Nil(t, UnknownPlaceholders("INV-%YYYY%-%MM%-%DD%-%YY%"))
	assert.Equal(t, []string{"%BRANCH%", "%Q%"}, UnknownPlaceholders("%BRANCH%-%Q%-%BRANCH%"))
	assert.Nil(t, UnknownPlaceholders("100% paid"))
}

func TestFiscalYearOf(t *testing.T) {
	march := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	april := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	t.Run("calendar year by default", func(t *testing.T) {
		assert.Equal(t, 2025, FiscalYearOf(march, 1))
		assert.Equal(t, 2025, FiscalYearOf(march, 0))
	})

	t.Run("april start", func(t *testing.T) {
		assert.Equal(t, 2024, FiscalYearOf(march, 4))
		assert.Equal(t, 2025, FiscalYearOf(april, 4))
	})

	t.Run("july start", func(t *testing.T) {
		assert.Equal(t, 2024, FiscalYearOf(april, 7))
	})
}
