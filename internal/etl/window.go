package etl

import "time"

// ReportStartDate is the first day of every pull. Each run reloads the full
// history up to yesterday.
const ReportStartDate = "2020-01-01"

const dateLayout = "2006-01-02"

// ReportWindow returns the pull range for a run at now: ReportStartDate
// through the day before now, in now's calendar.
func ReportWindow(now time.Time) (from, to string) {
	return ReportStartDate, now.AddDate(0, 0, -1).Format(dateLayout)
}
