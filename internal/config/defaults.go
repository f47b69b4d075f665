package config

const (
	defaultConfigPath        = "~/.config/docflow/config.toml"
	defaultDataDir           = "~/.local/share/docflow/data"
	defaultLogDir            = "~/.local/share/docflow/logs"
	defaultAPIBind           = "127.0.0.1:5102"
	defaultAdminUser         = "admin"
	defaultAdminPassword     = "admin"
	defaultReconcileInterval = 600
	defaultAutosaveInterval  = 60
	defaultBackupRetention   = 20
	defaultRequestTimeout    = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// DefaultSteps returns the pipeline used when none is configured.
func DefaultSteps() []string {
	return []string{"intake", "processing", "validation", "approval", "final"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Pipeline: Pipeline{
			DefaultSteps:  DefaultSteps(),
			StepBudgets:   map[string]int{},
			AdminUser:     defaultAdminUser,
			AdminPassword: defaultAdminPassword,
		},
		Workflow: Workflow{
			ReconcileInterval: defaultReconcileInterval,
			AutosaveInterval:  defaultAutosaveInterval,
		},
		Backup: Backup{
			Enabled:   true,
			Retention: defaultBackupRetention,
			OnSave:    true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
			Assigned:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
