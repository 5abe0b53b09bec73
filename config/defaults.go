package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "easyfile.db")

	// Export engine defaults
	v.SetDefault("export.app_id", "easy-file")
	v.SetDefault("export.work_dir", "")
	v.SetDefault("export.enable_compress", true)
	v.SetDefault("export.max_retry_attempts", 3)
	v.SetDefault("export.retry_wait_seconds", 5)
	v.SetDefault("export.rate_per_second", 10.0)
	v.SetDefault("export.rate_burst", 20)

	// Trigger / compensation defaults
	v.SetDefault("trigger.redis_addr", "localhost:6379")
	v.SetDefault("trigger.queue", "exports")
	v.SetDefault("trigger.concurrency", 4)
	v.SetDefault("trigger.max_trigger_count", 5)
	v.SetDefault("trigger.waiting_timeout_secs", 1800)
	v.SetDefault("trigger.scan_interval_secs", 60)
	v.SetDefault("trigger.look_back_secs", 3600)
	v.SetDefault("trigger.compensate_batch_size", 50)

	// Upload defaults
	v.SetDefault("upload.root", "exports")
	v.SetDefault("upload.base_url", "file://exports")

	// Log defaults
	v.SetDefault("log.json", false)
}
