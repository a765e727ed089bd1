package intent

import (
	"testing"

	"github.com/nbriggs/artificer/internal/tools"
)

func newTestAnalyzer() *RuleAnalyzer {
	return NewRuleAnalyzer(DefaultRules())
}

func TestMatchesExistingToolByName(t *testing.T) {
	a := newTestAnalyzer()
	avail := []*tools.Tool{
		{Name: "weather", Description: "Get the current weather for a city"},
	}

	got := a.Analyze("What's the weather in New York?", avail)

	if got.RequiresNewTool {
		t.Error("query covered by an existing capability must not require a new tool")
	}
	if got.MatchingTool == nil || got.MatchingTool.Name != "weather" {
		t.Errorf("MatchingTool = %v, want weather", got.MatchingTool)
	}
	if got.ShouldUpdateExisting {
		t.Error("plain usage query must not suggest an update")
	}
}

func TestMatchesExistingToolByDescriptionKeywords(t *testing.T) {
	a := newTestAnalyzer()
	avail := []*tools.Tool{
		{Name: "fx", Description: "convert currency using live exchange rates"},
	}

	got := a.Analyze("How many dollars is 100 euros at the current currency exchange rates?", avail)

	if got.MatchingTool == nil || got.MatchingTool.Name != "fx" {
		t.Fatalf("MatchingTool = %v, want fx via shared keywords", got.MatchingTool)
	}
	if got.RequiresNewTool {
		t.Error("keyword match must suppress creation intent")
	}
}

func TestExplicitCreationIntent(t *testing.T) {
	a := newTestAnalyzer()

	got := a.Analyze("Create a tool that can generate images", nil)

	if !got.RequiresNewTool {
		t.Fatal("explicit creation phrase must set RequiresNewTool")
	}
	if got.ShouldUpdateExisting {
		t.Error("no existing capability, nothing to update")
	}
	if got.SuggestedName != "image_generator" {
		t.Errorf("SuggestedName = %q, want image_generator", got.SuggestedName)
	}
	if got.SuggestedRequirements != "generate images" {
		t.Errorf("SuggestedRequirements = %q, want boilerplate stripped", got.SuggestedRequirements)
	}
}

func TestImplicitCreationIntent(t *testing.T) {
	a := newTestAnalyzer()

	got := a.Analyze("I want something to fetch stock prices for me", nil)

	if !got.RequiresNewTool {
		t.Fatal("action verb plus domain noun must set RequiresNewTool")
	}
	if got.SuggestedName != "stock_fetcher" {
		t.Errorf("SuggestedName = %q, want stock_fetcher", got.SuggestedName)
	}
}

func TestImplicitIntentSuppressedByMatch(t *testing.T) {
	a := newTestAnalyzer()
	avail := []*tools.Tool{
		{Name: "stock_fetcher", Description: "fetch current stock prices"},
	}

	got := a.Analyze("Can you fetch stock prices for AAPL?", avail)

	if got.RequiresNewTool {
		t.Error("existing capability must suppress implicit creation intent")
	}
	if got.MatchingTool == nil || got.MatchingTool.Name != "stock_fetcher" {
		t.Errorf("MatchingTool = %v, want stock_fetcher", got.MatchingTool)
	}
}

func TestUpdateIntent(t *testing.T) {
	a := newTestAnalyzer()
	avail := []*tools.Tool{
		{Name: "currency_converter", Description: "convert between currencies"},
	}

	got := a.Analyze("Update the currency_converter to also support crypto", avail)

	if !got.ShouldUpdateExisting {
		t.Fatal("update verb plus name mention must set ShouldUpdateExisting")
	}
	if got.RequiresNewTool {
		t.Error("update intent must not also request a new tool")
	}
	if got.MatchingTool == nil || got.MatchingTool.Name != "currency_converter" {
		t.Errorf("MatchingTool = %v, want currency_converter", got.MatchingTool)
	}
	if got.SuggestedName != "currency_converter" {
		t.Errorf("SuggestedName = %q, want the existing name", got.SuggestedName)
	}
}

func TestUpdateIntentWithSpokenName(t *testing.T) {
	a := newTestAnalyzer()
	avail := []*tools.Tool{
		{Name: "currency_converter", Description: "convert between currencies"},
	}

	got := a.Analyze("Improve the currency converter with historical rates", avail)

	if !got.ShouldUpdateExisting {
		t.Error("underscored names spoken with spaces must still match")
	}
	if got.SuggestedName != "currency_converter" {
		t.Errorf("SuggestedName = %q, want currency_converter", got.SuggestedName)
	}
}

func TestCreationIntentForCoveredCapabilitySuggestsUpdate(t *testing.T) {
	a := newTestAnalyzer()
	avail := []*tools.Tool{
		{Name: "weather", Description: "get the current weather for a city"},
	}

	got := a.Analyze("Create a tool that can get the weather forecast", avail)

	if got.RequiresNewTool {
		t.Error("creation intent for a covered capability must not forge a duplicate")
	}
	if !got.ShouldUpdateExisting {
		t.Error("creation intent for a covered capability should suggest an update instead")
	}
}

func TestFallbackNameFromSignificantWords(t *testing.T) {
	a := newTestAnalyzer()

	got := a.Analyze("Create a tool that can reverse strings", nil)

	if !got.RequiresNewTool {
		t.Fatal("explicit creation phrase must set RequiresNewTool")
	}
	if got.SuggestedName != "reverse_strings" {
		t.Errorf("SuggestedName = %q, want reverse_strings", got.SuggestedName)
	}
}

func TestRequirementsLimitedToTwoSentences(t *testing.T) {
	a := newTestAnalyzer()

	got := a.Analyze("I need a tool that can check password strength. It should rate from 1 to 10. Also make the output colorful.", nil)

	if !got.RequiresNewTool {
		t.Fatal("creation phrase must set RequiresNewTool")
	}
	want := "check password strength. It should rate from 1 to 10."
	if got.SuggestedRequirements != want {
		t.Errorf("SuggestedRequirements = %q, want %q", got.SuggestedRequirements, want)
	}
	if got.SuggestedName != "password_checker" {
		t.Errorf("SuggestedName = %q, want password_checker", got.SuggestedName)
	}
}

func TestNoIntent(t *testing.T) {
	a := newTestAnalyzer()

	got := a.Analyze("What time is it in Tokyo?", nil)

	if got.RequiresNewTool || got.ShouldUpdateExisting || got.MatchingTool != nil {
		t.Errorf("plain question must produce a zero analysis, got %+v", got)
	}
	if got.SuggestedName != "" || got.SuggestedRequirements != "" {
		t.Error("suggestions must be empty when no intent was detected")
	}
}

func TestSanitizeName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Currency Converter", "currency_converter"},
		{"pdf-merger", "pdf_merger"},
		{"  weird!!name  ", "weirdname"},
		{"___", "custom_tool"},
		{"", "custom_tool"},
	}
	for _, tc := range cases {
		if got := sanitizeName(tc.in); got != tc.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
