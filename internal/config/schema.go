// Package config defines the configuration schema for cronboard.
//
// JSON keys use camelCase. YAML files use the same key names.
package config

import (
	"time"
)

// ---- Backend ---------------------------------------------------------------

// RoutesConfig overrides the backend route templates. Blank entries keep the
// client defaults. {group_id} and {job_id} are substituted per request.
type RoutesConfig struct {
	ListGroups  string `json:"listGroups,omitempty" yaml:"listGroups,omitempty"`
	CreateGroup string `json:"createGroup,omitempty" yaml:"createGroup,omitempty"`
	ListJobs    string `json:"listJobs,omitempty" yaml:"listJobs,omitempty"`
	CreateJob   string `json:"createJob,omitempty" yaml:"createJob,omitempty"`
	JobStatus   string `json:"jobStatus,omitempty" yaml:"jobStatus,omitempty"`
	Execute     string `json:"execute,omitempty" yaml:"execute,omitempty"`
	Health      string `json:"health,omitempty" yaml:"health,omitempty"`
}

// BackendConfig points at the job-scheduling backend.
type BackendConfig struct {
	APIURL         string       `json:"apiUrl" yaml:"apiUrl"`
	TimeoutSeconds int          `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	Routes         RoutesConfig `json:"routes" yaml:"routes"`
}

func defaultBackendConfig() BackendConfig {
	return BackendConfig{APIURL: "http://localhost:8080", TimeoutSeconds: 10}
}

// Timeout returns the per-request timeout.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// ---- Polling ---------------------------------------------------------------

// PollConfig tunes the synchronizer.
type PollConfig struct {
	JobsIntervalMs   int `json:"jobsIntervalMs" yaml:"jobsIntervalMs"`
	StatusIntervalMs int `json:"statusIntervalMs" yaml:"statusIntervalMs"`
	GroupsIntervalMs int `json:"groupsIntervalMs" yaml:"groupsIntervalMs"`
	MaxParallel      int `json:"maxParallel" yaml:"maxParallel"`
}

func defaultPollConfig() PollConfig {
	return PollConfig{
		JobsIntervalMs:   2000,
		StatusIntervalMs: 2000,
		GroupsIntervalMs: 10000,
		MaxParallel:      8,
	}
}

// ---- Dashboard -------------------------------------------------------------

// DashboardConfig configures the HTTP dashboard.
type DashboardConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`
}

func defaultDashboardConfig() DashboardConfig {
	return DashboardConfig{Host: "127.0.0.1", Port: 8090, AllowedOrigins: []string{}}
}

// ---- Health ----------------------------------------------------------------

// HealthConfig configures the backend health probe.
type HealthConfig struct {
	Enabled         bool `json:"enabled" yaml:"enabled"`
	IntervalSeconds int  `json:"intervalSeconds" yaml:"intervalSeconds"`
}

func defaultHealthConfig() HealthConfig {
	return HealthConfig{Enabled: true, IntervalSeconds: 15}
}

// ---- Notify ----------------------------------------------------------------

// SlackConfig configures the Slack notifier.
type SlackConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	BotToken  string `json:"botToken" yaml:"botToken"`
	ChannelID string `json:"channelId" yaml:"channelId"`
}

// TelegramConfig configures the Telegram notifier.
type TelegramConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token" yaml:"token"`
	ChatID  int64  `json:"chatId" yaml:"chatId"`
}

// NotifyConfig selects which status transitions are announced and where.
type NotifyConfig struct {
	Statuses []string       `json:"statuses" yaml:"statuses"`
	Slack    SlackConfig    `json:"slack" yaml:"slack"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

func defaultNotifyConfig() NotifyConfig {
	return NotifyConfig{Statuses: []string{"failed", "completed"}}
}

// ---- Log -------------------------------------------------------------------

// LogConfig controls slog output.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

func defaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "text"}
}

// ---- Root config -----------------------------------------------------------

// Config is the root configuration object, loaded from ~/.cronboard/config.json.
type Config struct {
	Backend   BackendConfig   `json:"backend" yaml:"backend"`
	Poll      PollConfig      `json:"poll" yaml:"poll"`
	Dashboard DashboardConfig `json:"dashboard" yaml:"dashboard"`
	Health    HealthConfig    `json:"health" yaml:"health"`
	Notify    NotifyConfig    `json:"notify" yaml:"notify"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Backend:   defaultBackendConfig(),
		Poll:      defaultPollConfig(),
		Dashboard: defaultDashboardConfig(),
		Health:    defaultHealthConfig(),
		Notify:    defaultNotifyConfig(),
		Log:       defaultLogConfig(),
	}
}

func millis(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// JobsInterval returns the job list poll interval.
func (p PollConfig) JobsInterval() time.Duration { return millis(p.JobsIntervalMs) }

// StatusInterval returns the status poll interval.
func (p PollConfig) StatusInterval() time.Duration { return millis(p.StatusIntervalMs) }

// GroupsInterval returns the group refresh interval; zero disables it.
func (p PollConfig) GroupsInterval() time.Duration { return millis(p.GroupsIntervalMs) }

// Interval returns the health probe interval.
func (h HealthConfig) Interval() time.Duration {
	if h.IntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(h.IntervalSeconds) * time.Second
}
