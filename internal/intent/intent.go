// Package intent classifies raw user text into at most one task
// category using an ordered rule table. Classification is pure and
// total: no I/O, and unmatched text maps to None.
package intent

import (
	"regexp"
	"strings"
)

// Category is the task category a message classifies into.
type Category string

const (
	Research    Category = "research"
	Development Category = "development"
	Design      Category = "design"
	Marketing   Category = "marketing"
	None        Category = "none"
)

// Classification carries the matched category plus the design-conjunction
// flag: a development request that also uses design vocabulary gets a
// design step planned ahead of the development step.
type Classification struct {
	Category         Category
	NeedsDesignInput bool
}

type rule struct {
	re       *regexp.Regexp
	category Category
}

// Rule order is the priority order: the first matching rule wins.
var rules = []rule{
	{regexp.MustCompile(`(?i)\b(research|investigate|look into|find out about|gather (?:data|information)|market analysis|competitive analysis|what(?:'s| is) the market)\b`), Research},
	{regexp.MustCompile(`(?i)\b(build|implement|develop|code|program|fix(?:ing)? (?:a |the )?bug|write (?:the )?(?:code|a function|a script|an? (?:api|app))|set up (?:a |the )?(?:site|website|app|api|server|database)|add (?:a |the )?feature)\b`), Development},
	{regexp.MustCompile(`(?i)\b(design|redesign|mock ?up|wireframe|layout|ui|ux|user experience|look and feel|color (?:scheme|palette)|typography|branding style|restyle)\b`), Design},
	{regexp.MustCompile(`(?i)\b(market(?:ing)?|promote|promotion|advertis\w*|campaign|seo|social media|copywriting|launch strategy|go.to.market|brand awareness)\b`), Marketing},
}

// designVocab detects design-related wording inside a development
// request, e.g. "build a landing page with a modern design".
var designVocab = regexp.MustCompile(`(?i)\b(design|ui|ux|layout|mock ?up|wireframe|look and feel|styling|visual|aesthetic|color|typography)\b`)

// Classify maps text to at most one category. The first matching rule
// wins; text matching nothing yields None. A Development match that
// also contains design vocabulary sets NeedsDesignInput so the planner
// inserts a design step ahead of the development step.
func Classify(text string) Classification {
	for _, r := range rules {
		if !r.re.MatchString(text) {
			continue
		}
		cls := Classification{Category: r.category}
		if r.category == Development && designVocab.MatchString(text) {
			cls.NeedsDesignInput = true
		}
		return cls
	}
	return Classification{Category: None}
}

// Leading conversational filler stripped before templating instructions.
var fillerPrefixes = []string{
	"can you", "could you", "would you", "will you", "please",
	"hey", "hi", "hello", "ok", "okay", "so",
}

// CleanQuery strips leading conversational filler ("can you please ...")
// and surrounding punctuation, leaving the substantive request.
func CleanQuery(text string) string {
	cleaned := strings.TrimSpace(text)

	for {
		stripped := false
		lower := strings.ToLower(cleaned)
		for _, prefix := range fillerPrefixes {
			if lower == prefix {
				return ""
			}
			if strings.HasPrefix(lower, prefix+" ") || strings.HasPrefix(lower, prefix+",") {
				cleaned = strings.TrimSpace(cleaned[len(prefix):])
				cleaned = strings.TrimSpace(strings.TrimLeft(cleaned, ",.!?"))
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}

	return cleaned
}
