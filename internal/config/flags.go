package config

import (
	"github.com/spf13/cobra"
)

// RegisterFlags attaches the shared configuration flags to the provided command.
// Defaults come from cfg so the help output shows the effective values.
func RegisterFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.PersistentFlags()
	flags.String("host", cfg.Host, "HTTP listen host")
	flags.String("port", cfg.Port, "HTTP listen port")
	flags.String("db", cfg.DBPath, "Path to the SQLite database")
	flags.String("emails", cfg.EmailsPath, "Directory containing .eml and .mbox files")
	flags.String("locale", cfg.Locale, "Reply parsing locale (en, de, es, fr, it, nl, pt)")
	flags.String("patterns", cfg.PatternsFile, "YAML file with custom reply patterns and banners")
	flags.StringArray("banner", nil, "Regex for banner text to strip before parsing (repeatable)")
	flags.Int("workers", cfg.Workers, "Number of indexing workers")
	flags.String("log-level", cfg.LogLevel, "Logging level: debug, info, warn, error")
	flags.String("log-format", cfg.LogFormat, "Logging format: text or json")
}

// ApplyFlags copies every flag the user set explicitly onto cfg, then validates it
func ApplyFlags(cmd *cobra.Command, cfg *Config) error {
	flags := cmd.Flags()

	stringFlags := map[string]*string{
		"host":       &cfg.Host,
		"port":       &cfg.Port,
		"db":         &cfg.DBPath,
		"emails":     &cfg.EmailsPath,
		"locale":     &cfg.Locale,
		"patterns":   &cfg.PatternsFile,
		"log-level":  &cfg.LogLevel,
		"log-format": &cfg.LogFormat,
	}
	for name, dst := range stringFlags {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = value
	}

	if flags.Changed("workers") {
		workers, err := flags.GetInt("workers")
		if err != nil {
			return err
		}
		cfg.Workers = workers
	}

	if flags.Changed("banner") {
		banners, err := flags.GetStringArray("banner")
		if err != nil {
			return err
		}
		cfg.Banners = append(cfg.Banners, banners...)
	}

	return cfg.Validate()
}
