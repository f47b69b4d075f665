package config

import (
	"fmt"
	"os"
	"strings"

	"docflow/internal/model"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("DOCFLOW_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizePipeline() {
	steps := make([]string, 0, len(c.Pipeline.DefaultSteps))
	seen := make(map[string]struct{}, len(c.Pipeline.DefaultSteps))
	for _, raw := range c.Pipeline.DefaultSteps {
		step := model.NormalizeName(raw)
		if step == "" {
			continue
		}
		if _, dup := seen[step]; dup {
			continue
		}
		seen[step] = struct{}{}
		steps = append(steps, step)
	}
	c.Pipeline.DefaultSteps = steps

	budgets := make(map[string]int, len(c.Pipeline.StepBudgets))
	for raw, minutes := range c.Pipeline.StepBudgets {
		if step := model.NormalizeName(raw); step != "" {
			budgets[step] = minutes
		}
	}
	c.Pipeline.StepBudgets = budgets

	c.Pipeline.AdminUser = model.NormalizeName(c.Pipeline.AdminUser)
	if c.Pipeline.AdminUser == "" {
		c.Pipeline.AdminUser = defaultAdminUser
	}
	if value, ok := os.LookupEnv("DOCFLOW_ADMIN_PASSWORD"); ok && strings.TrimSpace(value) != "" {
		c.Pipeline.AdminPassword = value
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.ReconcileInterval == 0 {
		c.Workflow.ReconcileInterval = defaultReconcileInterval
	}
	if c.Workflow.AutosaveInterval == 0 {
		c.Workflow.AutosaveInterval = defaultAutosaveInterval
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
