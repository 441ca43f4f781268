package config

const (
	DefaultDataSource = "file"
	DefaultDataDir    = "./data"
	DefaultAuditDir   = "./audit"

	// DefaultLoanPeriod is two weeks.
	DefaultLoanPeriod = "336h"

	DefaultOverdueReportSchedule = "0 9 * * *"
)
