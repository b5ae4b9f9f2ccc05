// Package symbol parses instrument names and maps them to execution venues.
package symbol

import (
	"strings"
)

type Format string

const (
	FormatInternal Format = "internal"
	FormatBinance  Format = "binance"
	FormatMT5      Format = "mt5"
	FormatGate     Format = "gate"
)

// Venue names the broker family a symbol routes to.
type Venue string

const (
	VenueBinance Venue = "binance"
	VenueMT5     Venue = "mt5"
	VenuePaper   Venue = "paper"
)

// Converter translates between the internal BASE/QUOTE form and one venue's
// instrument names.
type Converter interface {
	ToExchange(internal string) string
	FromExchange(raw string) string
	Format() Format
}

type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) Internal() string { return s.Join("/") }

// Join concatenates the legs with sep; an incomplete symbol is empty.
func (s Symbol) Join(sep string) string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + sep + s.Quote
}

var cryptoQuotes = []string{"USDT", "BUSD", "USDC", "TUSD", "FDUSD", "BTC", "ETH", "BNB"}

// fiat and metal codes that make up MT5/forex instruments such as EURUSD
// or XAUUSD.
var forexCodes = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CHF": true,
	"AUD": true, "NZD": true, "CAD": true, "SEK": true, "NOK": true,
	"SGD": true, "HKD": true, "ZAR": true, "MXN": true, "TRY": true,
	"XAU": true, "XAG": true,
}

func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	for _, sep := range []string{"/", "_"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			return Symbol{
				Base:  strings.TrimSpace(parts[0]),
				Quote: strings.TrimSpace(parts[1]),
			}
		}
	}

	for _, quote := range cryptoQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	if len(s) == 6 && forexCodes[s[:3]] && forexCodes[s[3:]] {
		return Symbol{Base: s[:3], Quote: s[3:]}
	}

	return Symbol{}
}

func Normalize(s string) string {
	return Parse(s).Internal()
}

// Canonical is the pipeline key for s: the BASE/QUOTE form for pairs,
// otherwise the trimmed upper-case name (US30, AAPL, EURUSD.M).
func Canonical(s string) string {
	if norm := Normalize(s); norm != "" {
		return norm
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeList canonicalises and de-duplicates, dropping blanks.
func NormalizeList(symbols []string) []string {
	if len(symbols) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		key := Canonical(s)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

func IsValid(s string) bool {
	sym := Parse(s)
	return sym.Base != "" && sym.Quote != ""
}

// IsForex reports whether both legs are fiat or metal codes.
func IsForex(s string) bool {
	sym := Parse(s)
	return forexCodes[sym.Base] && forexCodes[sym.Quote]
}

// VenueFor routes forex and metals to MT5 and crypto pairs to Binance.
// Anything unrecognised returns fallback.
func VenueFor(s string, fallback Venue) Venue {
	sym := Parse(s)
	switch {
	case sym.Base == "" || sym.Quote == "":
		return fallback
	case forexCodes[sym.Base] && forexCodes[sym.Quote]:
		return VenueMT5
	default:
		for _, q := range cryptoQuotes {
			if sym.Quote == q {
				return VenueBinance
			}
		}
	}
	return fallback
}

// pairConverter covers venues that spell a pair as BASE<sep>QUOTE<suffix>.
// Names that are not pairs pass through upper-cased when passthrough is set.
type pairConverter struct {
	format      Format
	sep         string
	suffix      string
	passthrough bool
}

func (c pairConverter) ToExchange(internal string) string {
	if name := Parse(internal).Join(c.sep); name != "" {
		return name + c.suffix
	}
	if !c.passthrough {
		return ""
	}
	return strings.ReplaceAll(Canonical(internal), "/", "")
}

func (c pairConverter) FromExchange(raw string) string {
	raw = strings.TrimSpace(raw)
	if c.suffix != "" {
		raw = strings.TrimSuffix(raw, c.suffix)
	}
	if c.passthrough {
		return Canonical(raw)
	}
	return Normalize(raw)
}

func (c pairConverter) Format() Format { return c.format }

var (
	// Binance spells futures pairs BTCUSDT.
	Binance Converter = pairConverter{format: FormatBinance, passthrough: true}
	// Gate spells futures contracts BTC_USDT and has no non-pair instruments.
	Gate Converter = pairConverter{format: FormatGate, sep: "_"}
)

// MT5 returns the MetaTrader converter for a broker that appends suffix to
// its symbol names (EURUSD.m). Indices and stocks such as US30 pass through.
func MT5(suffix string) Converter {
	return pairConverter{format: FormatMT5, suffix: suffix, passthrough: true}
}
