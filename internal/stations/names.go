package stations

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CleanName folds a station name into a filename-safe token:
// diacritics are stripped, ß becomes ss, and runs of anything other than
// letters and digits collapse into a single underscore.
// "ST.PÖLTEN/LANDHAUS" becomes "ST_POLTEN_LANDHAUS".
func CleanName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.NewReplacer("ß", "ss", "ẞ", "SS").Replace(folded)

	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			pendingSep = false
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// capitalNames are the cleaned, upper-cased names of the reference station in each state capital.
var capitalNames = map[string]string{
	"WIEN_HOHE_WARTE":       "Wien",
	"EISENSTADT":            "Burgenland",
	"ST_POLTEN_LANDHAUS":    "Niederösterreich",
	"LINZ_STADT":            "Oberösterreich",
	"SALZBURG_FLUGHAFEN":    "Salzburg",
	"GRAZ_UNIVERSITAT":      "Steiermark",
	"KLAGENFURT_FLUGHAFEN":  "Kärnten",
	"INNSBRUCK_UNIVERSITAT": "Tirol",
	"BREGENZ":               "Vorarlberg",
}

// IsCapital reports whether name is one of the state-capital reference stations.
func IsCapital(name string) bool {
	_, ok := capitalNames[strings.ToUpper(CleanName(name))]
	return ok
}
