package pipeline

// applyRegexRules rewrites the serialized document with the profile's
// regex rules, each rule consuming the previous rule's output. A pattern
// that does not compile is skipped with a warning.
func (p *Pipeline) applyRegexRules(current string, result *Result) string {
	for _, rule := range p.profile.RegexRules {
		re, err := rule.Compile()
		if err != nil {
			result.AddWarning(stageRegex, "pattern does not compile, rule skipped", rule.Pattern)
			continue
		}
		if !re.MatchString(current) {
			continue
		}
		current = re.ReplaceAllString(current, rule.GoReplacement())
		result.Stats.RegexApplied++
	}
	return current
}
