package status

import (
	"fmt"
	"strings"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// ToCronExpr converts a schedule to a robfig/cron expression. It accepts a
// bare duration ("2m"), a daily time ("14:30") or any expression the
// standard parser takes, descriptors such as "@every 2m" included.
func ToCronExpr(schedule string) (string, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return "", fmt.Errorf("empty schedule")
	}
	if d, err := time.ParseDuration(schedule); err == nil {
		if d <= 0 {
			return "", fmt.Errorf("interval %q must be positive", schedule)
		}
		return fmt.Sprintf("@every %s", d), nil
	}
	var h, m int
	if n, _ := fmt.Sscanf(schedule, "%d:%d", &h, &m); n == 2 && !strings.Contains(schedule, " ") {
		if h < 0 || h > 23 || m < 0 || m > 59 {
			return "", fmt.Errorf("time %q out of range", schedule)
		}
		return fmt.Sprintf("%d %d * * *", m, h), nil
	}
	if _, err := robfigcron.ParseStandard(schedule); err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return schedule, nil
}
