package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	OpsAddr         string        `mapstructure:"ops_addr" yaml:"ops_addr"`
	DatabasePath    string        `mapstructure:"database_path" yaml:"database_path"`
	FilesDir        string        `mapstructure:"files_dir" yaml:"files_dir"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:            ":55555",
		OpsAddr:         ":8080",
		DatabasePath:    "pipechat.db",
		FilesDir:        "server_files",
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		LogLevel:        "info",
	}
}
