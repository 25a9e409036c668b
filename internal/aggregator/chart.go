package aggregator

import "sort"

// ChartRow is one date of the daily chart. Counts only has entries for
// motors that raised alerts that day.
type ChartRow struct {
	Date   string         `json:"date"`
	Counts map[string]int `json:"counts"`
	Total  int            `json:"total"`
}

// SortDailyCounts orders counts by date descending then motor ascending.
func SortDailyCounts(counts []DailyCount) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Date != counts[j].Date {
			return counts[i].Date > counts[j].Date
		}
		return counts[i].MotorID < counts[j].MotorID
	})
}

// BuildChartSeries groups daily counts into one row per date in a single
// pass, newest date first. Input order does not matter.
func BuildChartSeries(counts []DailyCount) []ChartRow {
	byDate := make(map[string]*ChartRow)
	dates := make([]string, 0)

	for _, c := range counts {
		if c.Count <= 0 {
			continue
		}
		row, ok := byDate[c.Date]
		if !ok {
			row = &ChartRow{Date: c.Date, Counts: make(map[string]int)}
			byDate[c.Date] = row
			dates = append(dates, c.Date)
		}
		row.Counts[c.MotorID] += c.Count
		row.Total += c.Count
	}

	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	rows := make([]ChartRow, 0, len(dates))
	for _, d := range dates {
		rows = append(rows, *byDate[d])
	}
	return rows
}
