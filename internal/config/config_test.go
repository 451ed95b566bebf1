package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felo/eml-reply/internal/reply"
)

// TestDefault tests the default configuration
func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "messages.db", filepath.Base(cfg.DBPath))
	assert.Equal(t, "en", cfg.Locale)
	assert.GreaterOrEqual(t, cfg.Workers, 2)
	assert.Equal(t, "http://localhost:8080", cfg.URL())
	assert.NoError(t, cfg.Validate())
}

// TestFromEnv tests environment overrides
func TestFromEnv(t *testing.T) {
	t.Setenv("EML_REPLY_PORT", "9090")
	t.Setenv("EML_REPLY_DB", "/tmp/test.db")
	t.Setenv("EML_REPLY_LOCALE", "it")
	t.Setenv("EML_REPLY_WORKERS", "3")
	t.Setenv("EML_REPLY_LOG_FORMAT", "json")
	t.Setenv("EML_REPLY_BANNER", `\[EXTERNAL\]`)

	cfg := FromEnv()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/tmp/test.db", cfg.DBPath)
	assert.Equal(t, "it", cfg.Locale)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{`\[EXTERNAL\]`}, cfg.Banners)
}

// TestFromEnv_InvalidInt tests that malformed integers keep the default
func TestFromEnv_InvalidInt(t *testing.T) {
	t.Setenv("EML_REPLY_WORKERS", "many")

	assert.Equal(t, Default().Workers, FromEnv().Workers)
}

// TestValidate tests rejection of unusable settings
func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty db path", func(c *Config) { c.DBPath = "" }, "database path"},
		{"bad port", func(c *Config) { c.Port = "http" }, "invalid port"},
		{"port out of range", func(c *Config) { c.Port = "70000" }, "invalid port"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"unknown locale", func(c *Config) { c.Locale = "xx" }, "unsupported locale"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "invalid log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// TestNewLogger tests formatter and level selection
func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "debug"

	logger := cfg.NewLogger()

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func writePatternFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestReplyParser_Locale tests that the configured locale is used
func TestReplyParser_Locale(t *testing.T) {
	cfg := Default()
	cfg.Locale = "de-AT"

	p, err := cfg.ReplyParser()
	require.NoError(t, err)
	assert.Equal(t, reply.German, p.Locale())
}

// TestReplyParser_PatternFile tests custom patterns merged over a locale bundle
func TestReplyParser_PatternFile(t *testing.T) {
	path := writePatternFile(t, `
locale: en
patterns:
  quoted: '^\|'
banners:
  - '(?s)DISCLAIMER.*'
`)

	cfg := Default()
	cfg.PatternsFile = path

	p, err := cfg.ReplyParser()
	require.NoError(t, err)
	assert.Equal(t, reply.Custom, p.Locale())

	text := "Works for me.\n\n| old message\n| more\n\nDISCLAIMER: this mail is private"
	assert.Equal(t, "Works for me.", p.ParseReply(text))
}

// TestReplyParser_PatternFileLocaleOnly tests a file that only selects a locale
func TestReplyParser_PatternFileLocaleOnly(t *testing.T) {
	cfg := Default()
	cfg.PatternsFile = writePatternFile(t, "locale: fr\n")

	p, err := cfg.ReplyParser()
	require.NoError(t, err)
	assert.Equal(t, reply.French, p.Locale())
}

// TestReplyParserFor tests that requested locales keep the configured banners
func TestReplyParserFor(t *testing.T) {
	cfg := Default()
	cfg.Banners = []string{`\[EXTERNAL\] ?`}

	for _, code := range []string{"", "en", "de", "xx"} {
		p, err := cfg.ReplyParserFor(code)
		require.NoError(t, err, code)
		assert.Equal(t, "Danke schön.", p.ParseReply("[EXTERNAL] Danke schön."), code)
	}

	p, err := cfg.ReplyParserFor("pt-BR")
	require.NoError(t, err)
	assert.Equal(t, reply.Portuguese, p.Locale())
}

// TestReplyParserFor_PatternFile tests that a requested locale wins over the file's locale
func TestReplyParserFor_PatternFile(t *testing.T) {
	cfg := Default()
	cfg.PatternsFile = writePatternFile(t, "locale: fr\nbanners:\n  - '(?s)DISCLAIMER.*'\n")

	p, err := cfg.ReplyParserFor("de")
	require.NoError(t, err)
	assert.Equal(t, reply.German, p.Locale())
	assert.Equal(t, "Passt.", p.ParseReply("Passt.\n\nDISCLAIMER: privat"))

	p, err = cfg.ReplyParserFor("")
	require.NoError(t, err)
	assert.Equal(t, reply.French, p.Locale())
}

// TestReplyParser_Errors tests that broken inputs fail at startup
func TestReplyParser_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		cfg := Default()
		cfg.PatternsFile = filepath.Join(t.TempDir(), "nope.yaml")

		_, err := cfg.ReplyParser()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read pattern file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		cfg := Default()
		cfg.PatternsFile = writePatternFile(t, "patterns: [unclosed")

		_, err := cfg.ReplyParser()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to decode pattern file")
	})

	t.Run("invalid pattern", func(t *testing.T) {
		cfg := Default()
		cfg.PatternsFile = writePatternFile(t, "patterns:\n  header: '(oops'\n")

		_, err := cfg.ReplyParser()
		require.Error(t, err)
		assert.ErrorIs(t, err, reply.ErrInvalidPatterns)
	})

	t.Run("unknown locale in file", func(t *testing.T) {
		cfg := Default()
		cfg.PatternsFile = writePatternFile(t, "locale: klingon\n")

		_, err := cfg.ReplyParser()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported locale "klingon"`)
	})

	t.Run("invalid banner", func(t *testing.T) {
		cfg := Default()
		cfg.Banners = []string{"[oops"}

		_, err := cfg.ReplyParser()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "banner pattern")
	})
}

// TestApplyFlags tests that only explicitly set flags override the config
func TestApplyFlags(t *testing.T) {
	cfg := Default()
	cfg.Host = "0.0.0.0"

	var applied error
	cmd := &cobra.Command{
		Use: "test",
		RunE: func(cmd *cobra.Command, args []string) error {
			applied = ApplyFlags(cmd, cfg)
			return applied
		},
	}
	RegisterFlags(cmd, cfg)
	cmd.SetArgs([]string{"--port", "9000", "--locale", "nl", "--workers", "4", "--banner", "foo", "--banner", "bar"})

	require.NoError(t, cmd.Execute())
	require.NoError(t, applied)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "nl", cfg.Locale)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, []string{"foo", "bar"}, cfg.Banners)
}

// TestApplyFlags_Invalid tests that flag values are validated
func TestApplyFlags_Invalid(t *testing.T) {
	cfg := Default()
	cmd := &cobra.Command{
		Use:           "test",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ApplyFlags(cmd, cfg)
		},
	}
	RegisterFlags(cmd, cfg)
	cmd.SetArgs([]string{"--log-format", "xml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}
