package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string

	// DB
	Env    string // "dev" | "prod"
	DBPath string // e.g. "./data/assembly.db"

	// Lifecycle engine
	AutoCloseOffset   time.Duration // grace window after end before auto-closure
	SweepCron         string        // cron spec for the closure sweep
	ReminderLead      time.Duration // how far ahead of start reminders fire; 0 disables
	RecurrenceCeiling int           // hard cap on generated instances per rule
}

func FromEnv() Config {
	addr := getenvDefault("ASSEMBLY_HTTP_ADDR", ":8080")

	env := strings.ToLower(getenvDefault("ASSEMBLY_ENV", "dev"))
	if env != "dev" && env != "prod" {
		// fail-soft: treat unknown as dev
		env = "dev"
	}

	dbPath := getenvDefault("ASSEMBLY_DB_PATH", "./data/assembly.db")

	autoCloseHours := getenvInt("ASSEMBLY_AUTO_CLOSE_OFFSET_HOURS", 3)
	sweepCron := getenvDefault("ASSEMBLY_SWEEP_CRON", "@every 1m")
	reminderLeadMin := getenvInt("ASSEMBLY_REMINDER_LEAD_MINUTES", 60)
	ceiling := getenvInt("ASSEMBLY_RECURRENCE_CEILING", 365)

	return Config{
		HTTPAddr: addr,
		Env:      env,
		DBPath:   dbPath,

		AutoCloseOffset:   time.Duration(autoCloseHours) * time.Hour,
		SweepCron:         sweepCron,
		ReminderLead:      time.Duration(reminderLeadMin) * time.Minute,
		RecurrenceCeiling: ceiling,
	}
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
