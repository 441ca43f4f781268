package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronSchedule checks a five-field cron expression.
func ValidateCronSchedule(schedule string) error {
	_, err := scheduleParser.Parse(schedule)
	return err
}

// GetCronDescription returns a human-readable description of a cron schedule
func GetCronDescription(schedule string) string {
	switch schedule {
	case "0 * * * *":
		return "Every hour at :00"
	case "*/15 * * * *":
		return "Every 15 minutes"
	case "0 9 * * *":
		return "Daily at 09:00"
	case "0 0 * * *":
		return "Daily at midnight"
	case "0 9 * * 1":
		return "Weekly on Monday at 09:00"
	default:
		return "Custom schedule: " + schedule
	}
}

// GetNextRunTime calculates when schedule fires next after from.
func GetNextRunTime(schedule string, from time.Time) (time.Time, error) {
	sched, err := scheduleParser.Parse(schedule)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
