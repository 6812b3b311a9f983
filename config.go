// CLAUDE:SUMMARY Configuration structs (scheduler, escalation, cluster) and YAML loader for sentinelle.
package sentinelle

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all sentinelle configuration.
type Config struct {
	DBPath     string           `yaml:"db_path"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Escalation EscalationConfig `yaml:"escalation"`
	Cluster    ClusterConfig    `yaml:"cluster"`

	// EventLogRetentionDays bounds the observability event log. Default: 30.
	EventLogRetentionDays int `yaml:"event_log_retention_days"`
}

// SchedulerConfig controls the periodic loops.
type SchedulerConfig struct {
	EvalInterval       time.Duration `yaml:"eval_interval"`
	EscalationInterval time.Duration `yaml:"escalation_interval"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	DaysBack           int           `yaml:"days_back"`
	MaxEvents          int           `yaml:"max_events"`
	DisableRuleWatch   bool          `yaml:"disable_rule_watch"`
}

// EscalationConfig controls escalation dispatch.
type EscalationConfig struct {
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	Workers         int           `yaml:"workers"`
	Visibility      time.Duration `yaml:"visibility"`
	PollInterval    time.Duration `yaml:"poll_interval"`
}

// ClusterConfig controls event clustering.
type ClusterConfig struct {
	// DaysBack is the default rebuild window. Default: 7.
	DaysBack int `yaml:"days_back"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "sentinelle.db"
	}
	if c.Scheduler.EvalInterval <= 0 {
		c.Scheduler.EvalInterval = time.Minute
	}
	if c.Scheduler.EscalationInterval <= 0 {
		c.Scheduler.EscalationInterval = 30 * time.Second
	}
	if c.Scheduler.SweepInterval <= 0 {
		c.Scheduler.SweepInterval = time.Minute
	}
	if c.Scheduler.DaysBack <= 0 {
		c.Scheduler.DaysBack = 7
	}
	if c.Scheduler.MaxEvents <= 0 {
		c.Scheduler.MaxEvents = 200
	}
	if c.Escalation.DispatchTimeout <= 0 {
		c.Escalation.DispatchTimeout = 15 * time.Second
	}
	if c.Escalation.Workers <= 0 {
		c.Escalation.Workers = 4
	}
	if c.Escalation.Visibility <= 0 {
		c.Escalation.Visibility = time.Minute
	}
	if c.Escalation.PollInterval <= 0 {
		c.Escalation.PollInterval = 2 * time.Second
	}
	if c.Cluster.DaysBack <= 0 {
		c.Cluster.DaysBack = 7
	}
	if c.EventLogRetentionDays == 0 {
		c.EventLogRetentionDays = 30
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
