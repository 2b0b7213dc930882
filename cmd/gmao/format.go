package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/yazid-hub/GMOA/internal/config"
	"github.com/yazid-hub/GMOA/internal/models"
)

const timeLayout = "2006-01-02 15:04"

var phaseColors = map[string]*color.Color{
	config.PhaseNew:        color.New(color.FgCyan),
	config.PhaseInProgress: color.New(color.FgYellow),
	config.PhaseClosed:     color.New(color.FgGreen),
	config.PhaseCancelled:  color.New(color.FgHiBlack),
}

var repairColors = map[string]*color.Color{
	models.RepairPending:    color.New(color.FgYellow),
	models.RepairValidated:  color.New(color.FgCyan),
	models.RepairInProgress: color.New(color.FgBlue),
	models.RepairDone:       color.New(color.FgGreen),
	models.RepairRejected:   color.New(color.FgRed),
	models.RepairDeferred:   color.New(color.FgHiBlack),
}

// orderStatus colors a work order status by its configured phase.
func orderStatus(w config.WorkflowConfig, status string) string {
	if c, ok := phaseColors[w.PhaseOf(status)]; ok {
		return c.Sprint(status)
	}
	return status
}

func repairStatus(status string) string {
	if c, ok := repairColors[status]; ok {
		return c.Sprint(status)
	}
	return status
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

// parseTime accepts RFC 3339, "YYYY-MM-DD HH:MM" or "YYYY-MM-DD" in local time.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{timeLayout, time.DateOnly} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q: use YYYY-MM-DD or YYYY-MM-DD HH:MM", s)
}

func optionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func parseMoney(name, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: invalid amount %q", name, s)
	}
	return d, nil
}

// optionalString returns nil unless the flag was set on the command line.
func optionalString(set bool, v string) *string {
	if !set {
		return nil
	}
	return &v
}
