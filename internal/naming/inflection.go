package naming

import (
	"strings"

	"github.com/jinzhu/inflection"
)

// Pluralize converts a singular word to its plural form.
// Overrides are matched case-insensitively and keep the input's leading case.
func (n *Namer) Pluralize(word string) string {
	if override, ok := lookupOverride(n.config.PluralOverrides, word); ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form.
func (n *Namer) Singularize(word string) string {
	if override, ok := lookupOverride(n.config.SingularOverrides, word); ok {
		return override
	}
	return inflection.Singular(word)
}

func lookupOverride(overrides map[string]string, word string) (string, bool) {
	if len(overrides) == 0 || word == "" {
		return "", false
	}
	for from, to := range overrides {
		if !strings.EqualFold(from, word) || to == "" {
			continue
		}
		if isUpper(word[0]) {
			return strings.ToUpper(to[:1]) + to[1:], true
		}
		return strings.ToLower(to[:1]) + to[1:], true
	}
	return "", false
}

func isUpper(b byte) bool {
	return b >= 'A' && b <= 'Z'
}
