package usecase

import (
	"regexp"
	"strings"

	"github.com/getclever/docqa-assistant/internal/core/domain"
)

// ExpansionRule maps trigger phrases found in the previous question to a
// fixed list of related topic terms.
type ExpansionRule struct {
	Triggers []string
	Terms    []string
}

// QueryRewriter expands follow-up questions with topic terms pulled from the
// most recent conversation turn. Detection is substring matching against a
// fixed referential-phrase list; this is a heuristic, not semantic
// understanding, and makes no correctness claim for arbitrary phrasing.
type QueryRewriter struct {
	followupPhrases []string
	rules           []ExpansionRule
	keywordPattern  *regexp.Regexp
}

const (
	maxExpansionTerms = 8
	maxExtractedWords = 5
)

var defaultFollowupPhrases = []string{
	"tell me more", "more about", "explain further", "what else",
	"more details", "expand on", "additional information",
	"more info", "tell me about it", "about that", "about this",
	"give me examples", "show me more", "how does this work",
}

var defaultExpansionRules = []ExpansionRule{
	{
		Triggers: []string{"ai", "artificial intelligence"},
		Terms: []string{
			"artificial intelligence", "AI", "machine learning", "healthcare AI",
			"clinical AI", "AI applications", "AI implementation", "AI governance",
		},
	},
	{
		Triggers: []string{"digital health", "digital transformation"},
		Terms: []string{
			"digital health", "digital transformation", "WHO strategy",
			"implementation", "governance", "interoperability", "data management",
		},
	},
	{
		Triggers: []string{"data", "analytics"},
		Terms: []string{
			"health data", "data governance", "analytics", "GDPR", "privacy",
			"data sharing", "data standards",
		},
	},
	{
		Triggers: []string{"who", "world health"},
		Terms: []string{
			"WHO", "World Health Organization", "global strategy",
			"digital health platform", "health systems",
		},
	},
	{
		Triggers: []string{"strategy", "policy"},
		Terms: []string{
			"strategy", "policy", "implementation", "governance", "framework",
			"guidelines",
		},
	},
}

func NewQueryRewriter(followupPhrases []string, rules []ExpansionRule) *QueryRewriter {
	if len(followupPhrases) == 0 {
		followupPhrases = defaultFollowupPhrases
	}
	if len(rules) == 0 {
		rules = defaultExpansionRules
	}
	return &QueryRewriter{
		followupPhrases: followupPhrases,
		rules:           rules,
		keywordPattern:  regexp.MustCompile(`\b[a-zA-Z]{5,}\b`),
	}
}

// Rewrite returns the question unchanged unless it looks like a follow-up and
// history holds at least one turn. Otherwise it appends up to 8 deduplicated
// topic terms derived from the previous question.
func (r *QueryRewriter) Rewrite(question string, history []domain.ConversationTurn) string {
	if len(history) == 0 || !r.isFollowup(question) {
		return question
	}

	previous := strings.ToLower(history[len(history)-1].Question)

	terms := make([]string, 0, maxExpansionTerms)
	seen := make(map[string]struct{})
	add := func(term string) {
		term = strings.TrimSpace(term)
		if term == "" || len(terms) >= maxExpansionTerms {
			return
		}
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		terms = append(terms, term)
	}

	for _, rule := range r.rules {
		if !anySubstring(previous, rule.Triggers) {
			continue
		}
		for _, term := range rule.Terms {
			add(term)
		}
	}

	words := r.keywordPattern.FindAllString(previous, -1)
	if len(words) > maxExtractedWords {
		words = words[:maxExtractedWords]
	}
	for _, word := range words {
		add(word)
	}

	if len(terms) == 0 {
		return question
	}
	return question + " " + strings.Join(terms, " ")
}

func (r *QueryRewriter) isFollowup(question string) bool {
	return anySubstring(strings.ToLower(question), r.followupPhrases)
}

func anySubstring(haystack string, needles []string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(haystack, strings.ToLower(needle)) {
			return true
		}
	}
	return false
}
