// Package config holds the exportd configuration loaded via Viper.
package config

import "fmt"

// Config is the top-level exportd configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Export   ExportConfig   `mapstructure:"export"`
	Trigger  TriggerConfig  `mapstructure:"trigger"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ExportConfig configures the export execution engine.
type ExportConfig struct {
	AppID            string  `mapstructure:"app_id"`             // application identity stamped on records
	WorkDir          string  `mapstructure:"work_dir"`           // scratch directory for generated files
	EnableCompress   bool    `mapstructure:"enable_compress"`    // zip artifacts before upload
	MaxRetryAttempts int     `mapstructure:"max_retry_attempts"` // generation retry attempts (default: 3)
	RetryWaitSeconds int     `mapstructure:"retry_wait_seconds"` // base wait between attempts, grows per attempt (default: 5)
	RatePerSecond    float64 `mapstructure:"rate_per_second"`    // registration token-bucket refill per task code
	RateBurst        int     `mapstructure:"rate_burst"`         // registration token-bucket burst per task code
}

// TriggerConfig configures the trigger dispatcher and compensation scanner.
type TriggerConfig struct {
	RedisAddr           string `mapstructure:"redis_addr"`            // redis broker address for the message queue
	Queue               string `mapstructure:"queue"`                 // queue name for trigger messages
	Concurrency         int    `mapstructure:"concurrency"`           // consumer worker concurrency
	MaxTriggerCount     int    `mapstructure:"max_trigger_count"`     // cap on dispatches per register id
	WaitingTimeoutSecs  int    `mapstructure:"waiting_timeout_secs"`  // waiting window before a trigger is considered stuck
	ScanIntervalSecs    int    `mapstructure:"scan_interval_secs"`    // compensation scanner period
	LookBackSecs        int    `mapstructure:"look_back_secs"`        // how far back the candidate sweep reaches
	CompensateBatchSize int    `mapstructure:"compensate_batch_size"` // max records per compensation sweep
}

// UploadConfig configures where finished artifacts land.
type UploadConfig struct {
	Root    string `mapstructure:"root"`     // local upload root directory
	BaseURL string `mapstructure:"base_url"` // public prefix prepended to stored paths
}

// LogConfig configures logger output.
type LogConfig struct {
	JSON bool `mapstructure:"json"` // structured JSON output instead of console
}

// String returns a short representation for startup logging.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Export: {AppID: %s, Compress: %t}, Trigger: {Redis: %s, Queue: %s}}",
		c.Database.Path, c.Export.AppID, c.Export.EnableCompress, c.Trigger.RedisAddr, c.Trigger.Queue)
}
