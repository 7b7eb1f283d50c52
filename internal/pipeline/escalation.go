package pipeline

import (
	"fmt"
	"regexp"
	"strings"
)

// Trigger names the condition that fired an escalation.
type Trigger string

const (
	TriggerKeyword   Trigger = "keyword"
	TriggerSentiment Trigger = "sentiment"
	TriggerTurns     Trigger = "turns"
	TriggerRepeated  Trigger = "repeated"
	TriggerDTMF      Trigger = "dtmf"
)

// EscalationResult is the detector's verdict on one user input.
type EscalationResult struct {
	ShouldEscalate bool
	Reason         string
	Confidence     float64
	Trigger        Trigger
}

// Escalation defaults.
const (
	DefaultMaxTurnsBeforeEscalation  = 15
	DefaultRepeatedQuestionThreshold = 3
	defaultJaccardSimilarity         = 0.6
)

// defaultEscalationKeywords are matched as substrings of the lowercased turn.
var defaultEscalationKeywords = []string{
	"speak to a human",
	"talk to a human",
	"speak to a person",
	"talk to a person",
	"speak to an agent",
	"talk to an agent",
	"real person",
	"transfer me",
	"supervisor",
	"representative",
	"customer service",
	"operator",
}

// defaultAngerPatterns flag hostile or profane phrasing.
var defaultAngerPatterns = []string{
	`(?i)\b(stupid|useless|idiot|terrible|awful|worst)\b.*\b(bot|robot|machine|system|service)\b`,
	`(?i)\b(fuck|shit|damn|hell)\b`,
	`(?i)\bthis is (ridiculous|unacceptable|outrageous)\b`,
	`(?i)\b(sick|tired) of\b`,
}

// EscalationConfig tunes the detector. Zero values fall back to the defaults
// above; Enabled false disables every trigger.
type EscalationConfig struct {
	Enabled                   bool
	Keywords                  []string
	AngerPatterns             []string
	MaxTurnsBeforeEscalation  int
	RepeatedQuestionThreshold int
}

// EscalationDetector decides when a conversation should be handed to a human
// agent. It is not safe for concurrent use — the orchestrator's turn handler
// owns it.
type EscalationDetector struct {
	enabled       bool
	keywords      []string
	angerPatterns []*regexp.Regexp
	maxTurns      int
	repeatedN     int

	turnCount   int
	recentTurns []string
}

// NewEscalationDetector compiles the configured patterns. Invalid regexes
// are an error rather than a silent skip.
func NewEscalationDetector(cfg EscalationConfig) (*EscalationDetector, error) {
	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = defaultEscalationKeywords
	}
	patterns := cfg.AngerPatterns
	if len(patterns) == 0 {
		patterns = defaultAngerPatterns
	}
	maxTurns := cfg.MaxTurnsBeforeEscalation
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurnsBeforeEscalation
	}
	repeatedN := cfg.RepeatedQuestionThreshold
	if repeatedN <= 0 {
		repeatedN = DefaultRepeatedQuestionThreshold
	}

	d := &EscalationDetector{
		enabled:   cfg.Enabled,
		maxTurns:  maxTurns,
		repeatedN: repeatedN,
	}
	for _, k := range keywords {
		d.keywords = append(d.keywords, strings.ToLower(k))
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pipeline: bad anger pattern %q: %w", p, err)
		}
		d.angerPatterns = append(d.angerPatterns, re)
	}
	return d, nil
}

// CheckTurn evaluates one completed user turn. Triggers are checked in
// order: keyword, anger, turn count, repeated questions.
func (d *EscalationDetector) CheckTurn(transcript string) EscalationResult {
	if !d.enabled {
		return EscalationResult{}
	}

	d.turnCount++
	d.recentTurns = append(d.recentTurns, transcript)
	if len(d.recentTurns) > d.repeatedN {
		d.recentTurns = d.recentTurns[len(d.recentTurns)-d.repeatedN:]
	}

	lower := strings.ToLower(transcript)
	for _, k := range d.keywords {
		if strings.Contains(lower, k) {
			return EscalationResult{
				ShouldEscalate: true,
				Reason:         fmt.Sprintf("caller asked for a human (%q)", k),
				Confidence:     0.9,
				Trigger:        TriggerKeyword,
			}
		}
	}

	for _, re := range d.angerPatterns {
		if re.MatchString(transcript) {
			return EscalationResult{
				ShouldEscalate: true,
				Reason:         "caller language indicates frustration",
				Confidence:     0.7,
				Trigger:        TriggerSentiment,
			}
		}
	}

	if d.turnCount >= d.maxTurns {
		return EscalationResult{
			ShouldEscalate: true,
			Reason:         fmt.Sprintf("conversation reached %d turns", d.turnCount),
			Confidence:     0.8,
			Trigger:        TriggerTurns,
		}
	}

	if r, ok := d.checkRepeated(); ok {
		return r
	}
	return EscalationResult{}
}

// CheckDTMF evaluates one DTMF digit. "0" always escalates.
func (d *EscalationDetector) CheckDTMF(digit string) EscalationResult {
	if !d.enabled || digit != "0" {
		return EscalationResult{}
	}
	return EscalationResult{
		ShouldEscalate: true,
		Reason:         "caller pressed 0",
		Confidence:     1.0,
		Trigger:        TriggerDTMF,
	}
}

// checkRepeated fires when at least half of the turn pairs in the recent
// window are near-duplicates, which usually means the bot keeps failing to
// answer the same question.
func (d *EscalationDetector) checkRepeated() (EscalationResult, bool) {
	if len(d.recentTurns) < d.repeatedN {
		return EscalationResult{}, false
	}

	pairs, similar := 0, 0
	for i := 0; i < len(d.recentTurns); i++ {
		for j := i + 1; j < len(d.recentTurns); j++ {
			pairs++
			if jaccard(d.recentTurns[i], d.recentTurns[j]) >= defaultJaccardSimilarity {
				similar++
			}
		}
	}
	if pairs == 0 || similar*2 < pairs {
		return EscalationResult{}, false
	}
	return EscalationResult{
		ShouldEscalate: true,
		Reason:         "caller keeps repeating the same question",
		Confidence:     0.75,
		Trigger:        TriggerRepeated,
	}, true
}

// jaccard computes token-set Jaccard similarity of two texts.
func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,!?;:\"'")
		if tok != "" {
			set[tok] = struct{}{}
		}
	}
	return set
}
