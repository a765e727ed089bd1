package intent

// RuleSet is the configuration data driving the rule-based analyzer.
// The tables are plain data so alternative classifiers (or tuned
// tables) can be swapped in without touching the agent loop.
type RuleSet struct {
	// CreationPhrases signal explicit intent to create a capability.
	CreationPhrases []string
	// UpdateVerbs signal intent to change an existing capability when
	// they co-occur with a capability name mention.
	UpdateVerbs []string
	// ActionVerbs maps verbs to the agent-noun suffix used when
	// deriving a suggested capability name (generate -> generator).
	ActionVerbs map[string]string
	// DomainNouns are subject-matter words that, together with an
	// action verb, signal implicit creation intent.
	DomainNouns []string
	// Stopwords are excluded from keyword matching and name derivation.
	Stopwords map[string]bool
}

// DefaultRules returns the built-in rule tables. The tables are tuned
// against the fixture queries exercised in the tests; they are a cheap
// approximation of intent, not a general natural-language classifier.
func DefaultRules() RuleSet {
	return RuleSet{
		CreationPhrases: []string{
			"create a tool",
			"make a tool",
			"build a tool",
			"write a tool",
			"i need a tool",
			"need a tool that",
			"tool that can",
			"add a tool",
			"new tool",
		},
		UpdateVerbs: []string{
			"update", "enhance", "modify", "improve", "extend", "upgrade", "fix", "change",
		},
		ActionVerbs: map[string]string{
			"convert":   "converter",
			"generate":  "generator",
			"fetch":     "fetcher",
			"analyze":   "analyzer",
			"calculate": "calculator",
			"translate": "translator",
			"check":     "checker",
			"track":     "tracker",
			"search":    "searcher",
			"summarize": "summarizer",
			"scrape":    "scraper",
			"validate":  "validator",
			"monitor":   "monitor",
			"encode":    "encoder",
			"download":  "downloader",
		},
		DomainNouns: []string{
			"currency", "stock", "sentiment", "image", "weather", "email",
			"password", "url", "crypto", "temperature", "unit", "file",
			"pdf", "news", "translation", "exchange", "date", "color",
			"text", "markdown", "json", "csv", "hash", "timezone",
		},
		Stopwords: map[string]bool{
			"a": true, "an": true, "the": true, "that": true, "this": true,
			"can": true, "could": true, "you": true, "your": true, "for": true,
			"with": true, "and": true, "but": true, "what": true, "whats": true,
			"how": true, "are": true, "is": true, "in": true, "of": true,
			"to": true, "i": true, "me": true, "my": true, "it": true,
			"please": true, "tool": true, "tools": true, "create": true,
			"make": true, "build": true, "need": true, "want": true,
			"would": true, "will": true, "from": true, "into": true,
			"about": true, "some": true, "any": true, "new": true,
		},
	}
}
