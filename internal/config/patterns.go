package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/felo/eml-reply/internal/reply"
)

// PatternFile is the YAML layout of a custom pattern file:
//
//	locale: en
//	patterns:
//	  signature: '^(?:--|Cheers,?$)'
//	  header: '^(?:From|To):\s+\S'
//	banners:
//	  - '(?s)CONFIDENTIALITY NOTICE:.*'
//
// Patterns left out are taken from the bundle of Locale.
type PatternFile struct {
	Locale   string       `yaml:"locale"`
	Patterns PatternBlock `yaml:"patterns"`
	Banners  []string     `yaml:"banners"`
}

// PatternBlock mirrors reply.PatternSpec with YAML keys
type PatternBlock struct {
	Signature  string `yaml:"signature"`
	Quoted     string `yaml:"quoted"`
	QuoteIntro string `yaml:"quote_intro"`
	IntroStart string `yaml:"intro_start"`
	IntroEnd   string `yaml:"intro_end"`
	Header     string `yaml:"header"`
}

func (b PatternBlock) empty() bool {
	return b == PatternBlock{}
}

// LoadPatternFile reads and decodes a pattern file
func LoadPatternFile(path string) (*PatternFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}

	pf := &PatternFile{}
	if err := yaml.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("failed to decode pattern file %s: %w", path, err)
	}

	if pf.Locale != "" {
		if _, ok := reply.LookupLocale(pf.Locale); !ok {
			return nil, fmt.Errorf("unsupported locale %q in pattern file %s", pf.Locale, path)
		}
	}

	return pf, nil
}

// spec merges the file's patterns over the bundle of base
func (pf *PatternFile) spec(base reply.Locale) reply.PatternSpec {
	spec := reply.PatternsFor(base)

	override := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	override(&spec.Signature, pf.Patterns.Signature)
	override(&spec.Quoted, pf.Patterns.Quoted)
	override(&spec.QuoteIntro, pf.Patterns.QuoteIntro)
	override(&spec.IntroStart, pf.Patterns.IntroStart)
	override(&spec.IntroEnd, pf.Patterns.IntroEnd)
	override(&spec.Header, pf.Patterns.Header)

	return spec
}

// ReplyParser builds the reply parser described by the configuration. Custom
// patterns and banners are validated here so a bad file fails at startup.
func (c *Config) ReplyParser() (*reply.Parser, error) {
	return c.ReplyParserFor("")
}

// ReplyParserFor builds a parser for the locale code with the configured
// banners and custom patterns. An empty code selects the configured locale,
// or the pattern file's locale when it names one; unknown codes fall back to
// the default locale.
func (c *Config) ReplyParserFor(code string) (*reply.Parser, error) {
	var pf *PatternFile
	if c.PatternsFile != "" {
		var err error
		if pf, err = LoadPatternFile(c.PatternsFile); err != nil {
			return nil, err
		}
	}

	locale, _ := reply.LookupLocale(c.Locale)
	switch {
	case code != "":
		locale, _ = reply.LookupLocale(code)
	case pf != nil && pf.Locale != "":
		locale, _ = reply.LookupLocale(pf.Locale)
	}

	opts := []reply.Option{reply.WithLocale(string(locale))}
	banners := append([]string(nil), c.Banners...)

	if pf != nil {
		if !pf.Patterns.empty() {
			opts = append(opts, reply.WithPatterns(pf.spec(locale)))
		}
		banners = append(banners, pf.Banners...)
	}

	if len(banners) > 0 {
		banner, err := reply.NewRegexpBanner(banners...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, reply.WithBanner(banner))
	}

	p, err := reply.NewParser(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create reply parser: %w", err)
	}
	return p, nil
}
