package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDaysInMonth(t *testing.T) {
	require.Equal(t, 31, DaysInMonth(1, 2024))
	require.Equal(t, 29, DaysInMonth(2, 2024))
	require.Equal(t, 28, DaysInMonth(2, 2023))
	require.Equal(t, 30, DaysInMonth(6, 2024))
	require.Equal(t, 31, DaysInMonth(12, 2024))
}

func TestPeriodBounds(t *testing.T) {
	from, to := PeriodBounds(2, 2024)
	require.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), from)
	require.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), to)
}

func TestProrate(t *testing.T) {
	// Full month bills the whole unit price.
	require.InDelta(t, 15.00, Prorate(15.00, 30, 6, 2024), 1e-9)
	// Half of June.
	require.InDelta(t, 7.50, Prorate(15.00, 15, 6, 2024), 1e-9)
	// Zero days bills nothing.
	require.InDelta(t, 0, Prorate(15.00, 0, 6, 2024), 1e-9)
	// Proration scales monotonically over the month.
	prev := -1.0
	for d := 0; d <= 31; d++ {
		got := Prorate(31.00, float64(d), 1, 2024)
		require.GreaterOrEqual(t, got, prev)
		prev = got
	}
	require.InDelta(t, 31.00, prev, 1e-9)
}

func TestValidatePeriod(t *testing.T) {
	now := time.Date(2024, time.July, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, ValidatePeriod(6, 2024, now))
	require.NoError(t, ValidatePeriod(12, 2020, now))
	require.ErrorIs(t, ValidatePeriod(0, 2024, now), ErrInvalidMonth)
	require.ErrorIs(t, ValidatePeriod(13, 2024, now), ErrInvalidMonth)
	require.ErrorIs(t, ValidatePeriod(6, 2019, now), ErrInvalidYear)
	require.ErrorIs(t, ValidatePeriod(6, 2025, now), ErrInvalidYear)
}

func TestPreviousPeriod(t *testing.T) {
	m, y := PreviousPeriod(time.Date(2024, time.July, 1, 6, 0, 0, 0, time.UTC))
	require.Equal(t, 6, m)
	require.Equal(t, 2024, y)

	m, y = PreviousPeriod(time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC))
	require.Equal(t, 12, m)
	require.Equal(t, 2023, y)

	m, y = PreviousPeriod(time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC))
	require.Equal(t, 2, m)
	require.Equal(t, 2024, y)
}
