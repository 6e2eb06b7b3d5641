package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goodsign/monday"
)

// Wikidata precision of a value known to the day
const precisionDay = 11

// longDate is the long date layout and month-name locale of a language
type longDate struct {
	layout string
	locale monday.Locale
}

var longDates = map[string]longDate{
	"en": {"January 2, 2006", monday.LocaleEnUS},
	"fr": {"2 January 2006", monday.LocaleFrFR},
	"de": {"2. January 2006", monday.LocaleDeDE},
	"es": {"2 de January de 2006", monday.LocaleEsES},
	"it": {"2 January 2006", monday.LocaleItIT},
	"pt": {"2 de January de 2006", monday.LocalePtPT},
	"nl": {"2 January 2006", monday.LocaleNlNL},
	"sv": {"2 January 2006", monday.LocaleSvSE},
	"pl": {"2 January 2006", monday.LocalePlPL},
	"ru": {"2 January 2006 г.", monday.LocaleRuRU},
}

// NormalizeTime renders a Wikidata time value as text. A CE value known to
// the day becomes a long localized date; anything else is reduced to its
// year without zero padding, keeping the minus sign of BCE years.
// A precision of 0 means unknown and does not prevent a full date.
func NormalizeTime(value string, precision int, lang string) string {
	if precision == 0 || precision >= precisionDay {
		if t, err := time.Parse("+2006-01-02T15:04:05Z", value); err == nil {
			return formatLongDate(t, lang)
		}
	}
	return year(value)
}

func formatLongDate(t time.Time, lang string) string {
	ld, ok := longDates[lang]
	if !ok {
		ld = longDates["en"]
	}
	out := monday.Format(t, ld.layout, ld.locale)
	// The layout pads years to four digits
	if y := t.Year(); y < 1000 {
		out = strings.Replace(out, fmt.Sprintf("%04d", y), strconv.Itoa(y), 1)
	}
	return out
}

func year(value string) string {
	sign := ""
	switch {
	case strings.HasPrefix(value, "-"):
		sign = "-"
		value = value[1:]
	case strings.HasPrefix(value, "+"):
		value = value[1:]
	}
	if i := strings.IndexByte(value, '-'); i >= 0 {
		value = value[:i]
	}
	digits := strings.TrimLeft(value, "0")
	if digits == "" {
		return "0"
	}
	return sign + digits
}
