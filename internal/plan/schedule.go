package plan

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
)

// scheduleParser accepts standard 5-field expressions (minute, hour, dom,
// month, dow) and descriptors such as @weekly.
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule validates a plan schedule.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, gmaoerr.Invalid("schedule", "%q: %v", expr, err)
	}
	return sched, nil
}

// NextDue returns the first occurrence of expr strictly after t.
func NextDue(expr string, t time.Time) (time.Time, error) {
	sched, err := ParseSchedule(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(t), nil
}
