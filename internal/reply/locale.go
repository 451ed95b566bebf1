package reply

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Locale selects the pattern bundle used to classify lines
type Locale string

// Supported locales
const (
	English    Locale = "en"
	German     Locale = "de"
	Spanish    Locale = "es"
	French     Locale = "fr"
	Italian    Locale = "it"
	Dutch      Locale = "nl"
	Portuguese Locale = "pt"

	// Custom marks a parser built from caller-supplied patterns
	Custom Locale = "custom"
)

// DefaultLocale is used whenever a locale code is not recognized
const DefaultLocale = English

// ErrInvalidPatterns is returned when a pattern bundle is incomplete or does not compile
var ErrInvalidPatterns = errors.New("invalid pattern bundle")

// PatternSpec is the uncompiled form of a locale pattern bundle.
//
// Every field is a Go (RE2) regular expression. Signature, Quoted, QuoteIntro and
// Header are matched against a single trimmed line. IntroStart and IntroEnd are
// searched in the whole body to find quote introductions that were wrapped over
// several lines.
type PatternSpec struct {
	Signature  string
	Quoted     string
	QuoteIntro string
	IntroStart string
	IntroEnd   string
	Header     string
}

const quotePrefix = `(?:(?:>|&gt;)\s*)*`

// signaturePattern builds a signature-start pattern from the shared delimiters,
// a "sent from my device" phrase and the locale's closing salutations.
func signaturePattern(device, salutations string) string {
	return `^(?:--|__|-\w|` + device + `|(?:` + salutations + `),?$)`
}

// headerPattern builds a structured header field pattern, allowing quote markers
// and Outlook-style asterisks around the field name.
func headerPattern(fields string) string {
	return `^` + quotePrefix + `\*?(?:` + fields + `)\*?:\*?[ \t]+\S`
}

var bundles = map[Locale]PatternSpec{
	English: {
		Signature:  signaturePattern(`Sent from my (?:\w+\s*){1,3}`, `Best regards|Kind regards|Warm regards`),
		Quoted:     `^(?:>|&gt;)`,
		QuoteIntro: `\bOn\s.+wrote:$`,
		IntroStart: `\bOn\s`,
		IntroEnd:   `wrote:`,
		Header:     headerPattern(`From|Sent|To|Subject`),
	},
	German: {
		Signature:  signaturePattern(`(?:Von meinem (?:\w+\s*){1,3}gesendet|Gesendet von meinem (?:\w+\s*){1,3})`, `Mit freundlichen Grüßen|Viele Grüße|Beste Grüße`),
		Quoted:     `^(?:>|&gt;)`,
		QuoteIntro: `\bAm\s.+schrieb.*:$`,
		IntroStart: `\bAm\s`,
		IntroEnd:   `schrieb[^\n]*:`,
		Header:     headerPattern(`Von|Gesendet|An|Betreff`),
	},
	Spanish: {
		Signature:  signaturePattern(`Enviado desde mi (?:\w+\s*){1,3}`, `Saludos|Un saludo|Atentamente`),
		Quoted:     `^(?:>|&gt;)`,
		QuoteIntro: `\bEl\s.+escribió:$`,
		IntroStart: `\bEl\s`,
		IntroEnd:   `escribió:`,
		Header:     headerPattern(`De|Enviado|Para|Asunto`),
	},
	French: {
		Signature:  signaturePattern(`Envoyé de mon (?:\w+\s*){1,3}`, `Cordialement|Bien à vous`),
		Quoted:     `^(?:>|&gt;)`,
		QuoteIntro: `\bLe\s.+a[\s\x{00A0}]+écrit[\s\x{00A0}]*:$`,
		IntroStart: `\bLe\s`,
		IntroEnd:   `a[\s\x{00A0}]+écrit[\s\x{00A0}]*:`,
		Header:     headerPattern(`De|Envoyé|À|Objet`),
	},
	Italian: {
		Signature:  signaturePattern(`Inviato da (?:\w+\s*){1,3}`, `Cordiali saluti|Saluti`),
		Quoted:     `^(?:>|&gt;)`,
		QuoteIntro: `\bIl\s.+ha\sscritto:$`,
		IntroStart: `\bIl\s`,
		IntroEnd:   `ha\sscritto:`,
		Header:     headerPattern(`Da|Data|A|Ogg`),
	},
	Dutch: {
		Signature:  signaturePattern(`Verzonden (?:vanaf|met) mijn (?:\w+\s*){1,3}`, `Met vriendelijke groet(?:en)?`),
		Quoted:     `^(?:>|&gt;)`,
		QuoteIntro: `\bOp\s.+schreef.*:$`,
		IntroStart: `\bOp\s`,
		IntroEnd:   `schreef[^\n]*:`,
		Header:     headerPattern(`Van|Verzonden|Aan|Onderwerp`),
	},
	Portuguese: {
		Signature:  signaturePattern(`Enviado do meu (?:\w+\s*){1,3}`, `Atenciosamente|Abraços`),
		Quoted:     `^(?:>|&gt;)`,
		QuoteIntro: `\bEm\s.+escreveu:$`,
		IntroStart: `\bEm\s`,
		IntroEnd:   `escreveu:`,
		Header:     headerPattern(`De|Enviado|Para|Assunto`),
	},
}

// Locales returns the supported locales in a stable order
func Locales() []Locale {
	return []Locale{English, German, Spanish, French, Italian, Dutch, Portuguese}
}

// LookupLocale maps a locale code such as "en", "pt-BR" or "IT" to a supported
// locale. Unknown codes resolve to DefaultLocale with ok set to false.
func LookupLocale(code string) (Locale, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	if _, ok := bundles[Locale(code)]; ok {
		return Locale(code), true
	}
	return DefaultLocale, false
}

// PatternsFor returns the built-in pattern bundle for a locale, falling back to
// the default locale's bundle for anything unsupported.
func PatternsFor(locale Locale) PatternSpec {
	if spec, ok := bundles[locale]; ok {
		return spec
	}
	return bundles[DefaultLocale]
}

// patterns is a compiled PatternSpec
type patterns struct {
	signature  *regexp.Regexp
	quoted     *regexp.Regexp
	quoteIntro *regexp.Regexp
	introStart *regexp.Regexp
	introEnd   *regexp.Regexp
	header     *regexp.Regexp
}

// compilePatterns validates and compiles every field of spec
func compilePatterns(spec PatternSpec) (*patterns, error) {
	p := &patterns{}
	fields := []struct {
		name   string
		source string
		dst    **regexp.Regexp
	}{
		{"signature", spec.Signature, &p.signature},
		{"quoted", spec.Quoted, &p.quoted},
		{"quote_intro", spec.QuoteIntro, &p.quoteIntro},
		{"intro_start", spec.IntroStart, &p.introStart},
		{"intro_end", spec.IntroEnd, &p.introEnd},
		{"header", spec.Header, &p.header},
	}

	for _, f := range fields {
		if strings.TrimSpace(f.source) == "" {
			return nil, fmt.Errorf("%w: %s pattern is empty", ErrInvalidPatterns, f.name)
		}
		re, err := regexp.Compile(f.source)
		if err != nil {
			return nil, fmt.Errorf("%w: %s pattern: %w", ErrInvalidPatterns, f.name, err)
		}
		*f.dst = re
	}

	return p, nil
}
