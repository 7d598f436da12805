package service

import (
	"fmt"
	"time"
)

// FinancialYear is one Australian financial year (1 July to 30 June),
// the unit of incremental sync against the accounting API.
type FinancialYear struct {
	Label string // e.g. "FY2024-25"
	Start time.Time
	End   time.Time
}

// FinancialYearForDate returns the financial year containing t
func FinancialYearForDate(t time.Time) FinancialYear {
	startYear := t.Year()
	if t.Month() < time.July {
		startYear--
	}
	return financialYearStarting(startYear)
}

// FinancialYearsBack returns the n most recent financial years, newest first,
// starting with the year containing now.
func FinancialYearsBack(now time.Time, n int) []FinancialYear {
	current := FinancialYearForDate(now)
	years := make([]FinancialYear, 0, n)
	startYear := current.Start.Year()
	for i := 0; i < n; i++ {
		years = append(years, financialYearStarting(startYear-i))
	}
	return years
}

func financialYearStarting(startYear int) FinancialYear {
	start := time.Date(startYear, time.July, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(startYear+1, time.June, 30, 0, 0, 0, 0, time.UTC)
	return FinancialYear{
		Label: fmt.Sprintf("FY%d-%02d", startYear, (startYear+1)%100),
		Start: start,
		End:   end,
	}
}
