package stages

import (
	"context"
	"regexp"
	"strings"

	"github.com/holdtalk/holdtalk/internal/observe"
	"github.com/holdtalk/holdtalk/internal/pipeline"
)

const regexCorrectorStageClass = "RegexCorrector"

type compiledRule struct {
	re          *regexp.Regexp
	replacement string
}

// RegexCorrector applies a declared-order list of literal-text
// find/replace rules to transcribed text, each independently toggling
// whole-word matching and case sensitivity.
type RegexCorrector struct {
	rules []compiledRule
}

// NewRegexCorrector is a pipeline.StageFactory; it compiles every rule at
// construction time so a malformed config fails fast rather than on first
// use.
func NewRegexCorrector(config map[string]any, _ map[string]any) (pipeline.Stage, error) {
	caseSensitive, _ := config["case_sensitive"].(bool)
	wholeWordOnly := true
	if v, ok := config["whole_word_only"].(bool); ok {
		wholeWordOnly = v
	}

	rawRules, _ := config["corrections"].([]any)
	rules := make([]compiledRule, 0, len(rawRules))
	for _, raw := range rawRules {
		entry, ok := raw.([]any)
		if !ok || len(entry) < 2 {
			continue
		}
		pattern, ok1 := entry[0].(string)
		replacement, ok2 := entry[1].(string)
		if !ok1 || !ok2 {
			continue
		}

		ruleCaseSensitive, ruleWholeWord := caseSensitive, wholeWordOnly
		if len(entry) >= 3 {
			if overrides, ok := entry[2].(string); ok {
				ruleCaseSensitive, ruleWholeWord = applyOverrides(overrides, ruleCaseSensitive, ruleWholeWord)
			}
		}

		re, err := compileRule(pattern, ruleCaseSensitive, ruleWholeWord)
		if err != nil {
			continue
		}
		rules = append(rules, compiledRule{re: re, replacement: replacement})
	}
	return &RegexCorrector{rules: rules}, nil
}

func compileRule(pattern string, caseSensitive, wholeWordOnly bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if !caseSensitive {
		b.WriteString("(?i)")
	}
	if wholeWordOnly {
		b.WriteString(`\b`)
	}
	b.WriteString(regexp.QuoteMeta(pattern))
	if wholeWordOnly {
		b.WriteString(`\b`)
	}
	return regexp.Compile(b.String())
}

// applyOverrides parses a comma-separated "key=value" list (e.g.
// "case_sensitive=true,whole_word_only=false") on top of the stage-level
// defaults.
func applyOverrides(raw string, caseSensitive, wholeWordOnly bool) (bool, bool) {
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, val := strings.TrimSpace(kv[0]), strings.TrimSpace(strings.ToLower(kv[1]))
		boolVal := val == "true"
		switch key {
		case "case_sensitive":
			caseSensitive = boolVal
		case "whole_word_only":
			wholeWordOnly = boolVal
		}
	}
	return caseSensitive, wholeWordOnly
}

func (c *RegexCorrector) Execute(ctx context.Context, input any, _ *pipeline.Context) (any, error) {
	text, _ := input.(string)
	if text == "" {
		return nil, nil
	}

	matched := 0
	for _, rule := range c.rules {
		if rule.re.MatchString(text) {
			matched++
		}
		text = rule.re.ReplaceAllLiteralString(text, rule.replacement)
	}
	observe.Logger(ctx).Debug("regex corrector applied", "rules_matched", matched, "rules_total", len(c.rules))
	return text, nil
}

func RegexCorrectorDefinition() pipeline.StageDefinition {
	return pipeline.StageDefinition{
		Name:              regexCorrectorStageClass,
		InputType:         pipeline.TypeOptionalString,
		OutputType:        pipeline.TypeOptionalString,
		RequiredResources: pipeline.NewResourceSet(),
		Factory:           NewRegexCorrector,
	}
}
