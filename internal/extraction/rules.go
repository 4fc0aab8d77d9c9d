package extraction

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed classifier_rules.yaml
var defaultRulesYAML []byte

// KeywordSet is one side of the keyword rules.
type KeywordSet struct {
	Keywords []string `yaml:"keywords"`
	Strong   []string `yaml:"strong"`
}

// RuleTuning holds the numeric knobs of the keyword tier.
type RuleTuning struct {
	MinKeywordScore      int     `yaml:"min_keyword_score"`
	BaseConfidence       float64 `yaml:"base_confidence"`
	KeywordStep          float64 `yaml:"keyword_step"`
	KeywordCap           float64 `yaml:"keyword_cap"`
	StrongConfidence     float64 `yaml:"strong_confidence"`
	IrrelevantConfidence float64 `yaml:"irrelevant_confidence"`
	FallbackConfidence   float64 `yaml:"fallback_confidence"`
	ModelPrefixChars     int     `yaml:"model_prefix_chars"`
}

// ClassifierRules is the full rule document.
type ClassifierRules struct {
	Outward KeywordSet          `yaml:"outward"`
	Inward  KeywordSet          `yaml:"inward"`
	Labels  map[string][]string `yaml:"labels"`
	Tuning  RuleTuning          `yaml:"tuning"`

	labelNames []string
	matchers   map[string]*regexp.Regexp
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *ClassifierRules {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded classifier rules: %v", err))
	}
	return rules
}

// LoadRules reads a rule document from path. Tuning values left out of the
// file keep their built-in defaults.
func LoadRules(path string) (*ClassifierRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule document on top of the defaults.
func ParseRules(data []byte) (*ClassifierRules, error) {
	rules := &ClassifierRules{Tuning: defaultTuning()}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if len(rules.Outward.Keywords) == 0 && len(rules.Inward.Keywords) == 0 {
		return nil, fmt.Errorf("parse rules: no keywords defined")
	}
	rules.normalize()
	return rules, nil
}

func defaultTuning() RuleTuning {
	return RuleTuning{
		MinKeywordScore:      1,
		BaseConfidence:       0.5,
		KeywordStep:          0.1,
		KeywordCap:           0.8,
		StrongConfidence:     0.9,
		IrrelevantConfidence: 0.9,
		FallbackConfidence:   0.5,
		ModelPrefixChars:     300,
	}
}

func (r *ClassifierRules) normalize() {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	r.Outward.Keywords = lower(r.Outward.Keywords)
	r.Outward.Strong = lower(r.Outward.Strong)
	r.Inward.Keywords = lower(r.Inward.Keywords)
	r.Inward.Strong = lower(r.Inward.Strong)
	r.matchers = make(map[string]*regexp.Regexp)
	for _, set := range [][]string{r.Outward.Keywords, r.Outward.Strong, r.Inward.Keywords, r.Inward.Strong} {
		r.compile(set)
	}

	r.labelNames = r.labelNames[:0]
	for name, words := range r.Labels {
		r.Labels[name] = lower(words)
		r.compile(r.Labels[name])
		r.labelNames = append(r.labelNames, name)
	}
	sort.Strings(r.labelNames)

	if r.Tuning.MinKeywordScore < 1 {
		r.Tuning.MinKeywordScore = 1
	}
	if r.Tuning.ModelPrefixChars <= 0 {
		r.Tuning.ModelPrefixChars = 300
	}
}

// compile builds a word-boundary matcher per phrase. A short inflection
// suffix is allowed so "purchase" also matches "purchases" and "purchased".
func (r *ClassifierRules) compile(phrases []string) {
	for _, p := range phrases {
		if _, ok := r.matchers[p]; ok {
			continue
		}
		r.matchers[p] = regexp.MustCompile(`\b` + regexp.QuoteMeta(p) + `(?:s|es|d|ed|er|ers)?\b`)
	}
}

// detectLabels returns the sorted label names whose words occur in lower.
func (r *ClassifierRules) detectLabels(lower string) []string {
	labels := []string{}
	for _, name := range r.labelNames {
		if r.containsAny(lower, r.Labels[name]) {
			labels = append(labels, name)
		}
	}
	return labels
}

// countKeywords returns how many distinct phrases occur in lower.
func (r *ClassifierRules) countKeywords(lower string, phrases []string) int {
	n := 0
	for _, p := range phrases {
		if r.matchers[p].MatchString(lower) {
			n++
		}
	}
	return n
}

func (r *ClassifierRules) containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if r.matchers[p].MatchString(lower) {
			return true
		}
	}
	return false
}
