package config

import (
	"fmt"
	"strings"
)

// Config is the daemon's configuration file root. JSON and YAML are both
// accepted; YAML is coerced to JSON and decoded strictly, so unknown fields
// are rejected in either format.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Journal   *JournalConfig  `json:"journal,omitempty"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Alerts    *AlertsConfig   `json:"alerts,omitempty"`
	Jobs      []JobConfig     `json:"jobs"`
}

type LoggingConfig struct {
	Level   string         `json:"level,omitempty"`
	Console *bool          `json:"console,omitempty"`
	File    *FileLogConfig `json:"file,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// JournalConfig enables the sqlite firing journal. Omitting the block runs
// the daemon without persistence.
type JournalConfig struct {
	Path string `json:"path"`
	// BusyTimeout and Retain are Go duration strings ("5s", "720h").
	BusyTimeout string `json:"busy_timeout,omitempty"`
	Retain      string `json:"retain,omitempty"`
}

type SchedulerConfig struct {
	MaxConcurrent int    `json:"max_concurrent,omitempty"`
	TickInterval  string `json:"tick_interval,omitempty"`
	// Store-acknowledgement retry pacing. Zero keeps the engine defaults.
	CompleteRetryInterval string `json:"complete_retry_interval,omitempty"`
	VetoedRetryInterval   string `json:"vetoed_retry_interval,omitempty"`
}

type AlertsConfig struct {
	Telegram *TelegramAlertConfig `json:"telegram,omitempty"`
}

type TelegramAlertConfig struct {
	Token      string `json:"token"`
	ChatID     int64  `json:"chat_id"`
	RatePerMin int    `json:"rate_per_min,omitempty"`
}

// JobConfig declares one job and the triggers that fire it.
type JobConfig struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Data     map[string]any  `json:"data,omitempty"`
	Triggers []TriggerConfig `json:"triggers"`
}

// TriggerConfig declares one trigger. Exactly one of Cron or Every must be
// set.
type TriggerConfig struct {
	Name string `json:"name"`
	// Cron is a 5-field cron expression or descriptor ("@daily").
	Cron string `json:"cron,omitempty"`
	// Every is a Go duration string for interval triggers.
	Every string `json:"every,omitempty"`
	// RunLimit caps interval firings; 0 means unlimited.
	RunLimit int `json:"run_limit,omitempty"`
	// MaxRefires allows bounded immediate re-execution after a declared
	// job failure.
	MaxRefires int `json:"max_refires,omitempty"`
}

// Validate checks cross-field rules the decoder cannot express.
func (c *Config) Validate() error {
	if c.Journal != nil && strings.TrimSpace(c.Journal.Path) == "" {
		return fmt.Errorf("journal: path is required when the block is present")
	}
	if c.Alerts != nil && c.Alerts.Telegram != nil {
		tg := c.Alerts.Telegram
		if strings.TrimSpace(tg.Token) == "" || tg.ChatID == 0 {
			return fmt.Errorf("alerts.telegram: token and chat_id are required")
		}
	}

	jobNames := map[string]bool{}
	trigNames := map[string]bool{}
	for i, j := range c.Jobs {
		if strings.TrimSpace(j.Name) == "" {
			return fmt.Errorf("jobs[%d]: name is required", i)
		}
		if jobNames[j.Name] {
			return fmt.Errorf("jobs[%d]: duplicate job name %q", i, j.Name)
		}
		jobNames[j.Name] = true
		if strings.TrimSpace(j.Type) == "" {
			return fmt.Errorf("job %q: type is required", j.Name)
		}
		if len(j.Triggers) == 0 {
			return fmt.Errorf("job %q: at least one trigger is required", j.Name)
		}
		for k, t := range j.Triggers {
			if strings.TrimSpace(t.Name) == "" {
				return fmt.Errorf("job %q: triggers[%d]: name is required", j.Name, k)
			}
			if trigNames[t.Name] {
				return fmt.Errorf("job %q: duplicate trigger name %q", j.Name, t.Name)
			}
			trigNames[t.Name] = true
			hasCron := strings.TrimSpace(t.Cron) != ""
			hasEvery := strings.TrimSpace(t.Every) != ""
			if hasCron == hasEvery {
				return fmt.Errorf("trigger %q: exactly one of cron or every must be set", t.Name)
			}
			if _, err := ParseDurationField("trigger "+t.Name+": every", t.Every); err != nil {
				return err
			}
			if t.MaxRefires < 0 || t.RunLimit < 0 {
				return fmt.Errorf("trigger %q: run_limit and max_refires must be >= 0", t.Name)
			}
		}
	}
	return nil
}
