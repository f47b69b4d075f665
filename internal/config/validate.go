package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateBackup(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if len(c.Pipeline.DefaultSteps) == 0 {
		return errors.New("pipeline.default_steps must contain at least one step")
	}
	if c.Pipeline.DefaultBudgetMinutes < 0 {
		return errors.New("pipeline.default_budget_minutes must be >= 0")
	}
	for step, minutes := range c.Pipeline.StepBudgets {
		if minutes < 0 {
			return fmt.Errorf("pipeline.step_budgets.%s must be >= 0", step)
		}
	}
	if strings.TrimSpace(c.Pipeline.AdminPassword) == "" {
		return errors.New("pipeline.admin_password must be set (or DOCFLOW_ADMIN_PASSWORD)")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.ReconcileInterval < 0 {
		return errors.New("workflow.reconcile_interval must be positive")
	}
	if c.Workflow.AutosaveInterval < 0 {
		return errors.New("workflow.autosave_interval must be positive")
	}
	return nil
}

func (c *Config) validateBackup() error {
	if c.Backup.Retention < 0 {
		return errors.New("backup.retention must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
