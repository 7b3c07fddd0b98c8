package app

import (
	"time"

	"marketsched/internal/task"
)

// DefaultTasks is the built-in daily pipeline used when the config file
// defines no tasks: pre-open data download, a monitor during sessions, and
// an after-close report that depends on the download.
func DefaultTasks() []task.Task {
	return []task.Task{
		{
			ID:         "download_market_data",
			Name:       "Download market data",
			Command:    "/usr/local/bin/market-download --out /var/lib/marketsched/data",
			Argv:       []string{"/usr/local/bin/market-download", "--out", "/var/lib/marketsched/data"},
			Schedule:   "daily_08_30",
			Priority:   task.PriorityHigh,
			MaxRetries: 5,
			Timeout:    30 * time.Minute,
			Enabled:    true,
		},
		{
			ID:              "market_monitor",
			Name:            "Session monitor",
			Command:         "/usr/local/bin/market-monitor --once",
			Argv:            []string{"/usr/local/bin/market-monitor", "--once"},
			Schedule:        "every_5_minutes",
			Priority:        task.PriorityNormal,
			MaxRetries:      1,
			Timeout:         2 * time.Minute,
			MarketHoursOnly: true,
			Enabled:         true,
		},
		{
			ID:           "daily_report",
			Name:         "Daily report",
			Command:      "/usr/local/bin/market-report --date today",
			Argv:         []string{"/usr/local/bin/market-report", "--date", "today"},
			Schedule:     "daily_16_00",
			Priority:     task.PriorityNormal,
			MaxRetries:   3,
			Timeout:      15 * time.Minute,
			Dependencies: []string{"download_market_data"},
			Enabled:      true,
		},
	}
}
