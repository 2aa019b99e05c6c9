package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cogmanager/pkg/config"
)

// Check names used by the scheduler, the worker CLI and metrics labels.
const (
	CheckPeriodicity       = "periodicity-check"
	CheckDailyCompletion   = "daily-completion-check"
	CheckStreakReminder    = "streak-reminder"
	CheckTaskNotifications = "check-notifications"
)

// Checks lists every reminder check in a stable order.
var Checks = []string{CheckPeriodicity, CheckDailyCompletion, CheckStreakReminder, CheckTaskNotifications}

type Config struct {
	Server    config.ServerConfig `yaml:"server"`
	DB        config.DBConfig     `yaml:"db"`
	Redis     config.RedisConfig  `yaml:"redis"`
	MQ        config.MQConfig     `yaml:"mq"`
	JWT       config.JWTConfig    `yaml:"jwt"`
	Push      config.PushConfig   `yaml:"push"`
	Otel      config.OtelConfig   `yaml:"otel"`
	Scheduler SchedulerConfig     `yaml:"scheduler"`
	Auth      AuthConfig          `yaml:"auth"`
}

// SchedulerConfig 定时提醒配置，时间均为 Timezone 下的本地时间
type SchedulerConfig struct {
	Timezone string      `yaml:"timezone"`
	Jobs     []JobConfig `yaml:"jobs"`
}

// JobConfig runs Check every day at At ("HH:MM").
type JobConfig struct {
	Check string `yaml:"check"`
	At    string `yaml:"at"`
}

type AuthConfig struct {
	// 为 true 时四个检查端点需要 service_role token
	RequireServiceRoleForChecks bool `yaml:"require_service_role_for_checks"`
}

// Load 使用统一配置中心加载配置，环境变量优先级最高
func Load() (*Config, error) {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	var cfg Config
	if _, err := config.LoadInto(env, configDir, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverridePushFromEnv(&cfg.Push)
	config.OverrideOtelFromEnv(&cfg.Otel)
	if tz := os.Getenv("APP_TIMEZONE"); tz != "" {
		cfg.Scheduler.Timezone = tz
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for _, job := range c.Scheduler.Jobs {
		if !IsCheck(job.Check) {
			return fmt.Errorf("scheduler: unknown check %q", job.Check)
		}
		if _, _, err := ParseClock(job.At); err != nil {
			return fmt.Errorf("scheduler: job %s: %w", job.Check, err)
		}
	}
	return nil
}

// Location 返回业务时区，"今天" 的判定以此为准
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler.timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return loc, nil
}

// IsCheck reports whether name is a known reminder check.
func IsCheck(name string) bool {
	for _, c := range Checks {
		if c == name {
			return true
		}
	}
	return false
}

// ParseClock parses "HH:MM" in 24h format.
func ParseClock(s string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
