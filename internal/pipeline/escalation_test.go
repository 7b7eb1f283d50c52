package pipeline

import "testing"

func newDetector(t *testing.T, cfg EscalationConfig) *EscalationDetector {
	t.Helper()
	d, err := NewEscalationDetector(cfg)
	if err != nil {
		t.Fatalf("NewEscalationDetector: %v", err)
	}
	return d
}

func TestKeywordTrigger(t *testing.T) {
	t.Parallel()

	d := newDetector(t, EscalationConfig{Enabled: true})
	r := d.CheckTurn("I want to speak to a human right now")
	if !r.ShouldEscalate {
		t.Fatal("keyword should escalate")
	}
	if r.Trigger != TriggerKeyword {
		t.Errorf("trigger = %q, want keyword", r.Trigger)
	}
}

func TestAngerTrigger(t *testing.T) {
	t.Parallel()

	d := newDetector(t, EscalationConfig{Enabled: true})
	r := d.CheckTurn("this is ridiculous, nothing works")
	if !r.ShouldEscalate {
		t.Fatal("anger pattern should escalate")
	}
	if r.Trigger != TriggerSentiment {
		t.Errorf("trigger = %q, want sentiment", r.Trigger)
	}
}

func TestTurnCountTrigger(t *testing.T) {
	t.Parallel()

	d := newDetector(t, EscalationConfig{Enabled: true, MaxTurnsBeforeEscalation: 3})
	turns := []string{
		"what are your opening hours",
		"do you deliver on weekends",
		"how much is shipping",
	}
	var r EscalationResult
	for _, turn := range turns {
		r = d.CheckTurn(turn)
	}
	if !r.ShouldEscalate {
		t.Fatal("third turn should escalate")
	}
	if r.Trigger != TriggerTurns {
		t.Errorf("trigger = %q, want turns", r.Trigger)
	}
}

func TestRepeatedQuestionTrigger(t *testing.T) {
	t.Parallel()

	d := newDetector(t, EscalationConfig{Enabled: true})
	d.CheckTurn("where is my order number five")
	d.CheckTurn("where is my order number five")
	r := d.CheckTurn("where is my order number five")
	if !r.ShouldEscalate {
		t.Fatal("three near-identical turns should escalate")
	}
	if r.Trigger != TriggerRepeated {
		t.Errorf("trigger = %q, want repeated", r.Trigger)
	}
}

func TestDistinctQuestionsDoNotTriggerRepeated(t *testing.T) {
	t.Parallel()

	d := newDetector(t, EscalationConfig{Enabled: true})
	for _, turn := range []string{
		"what are your opening hours",
		"do you stock blue widgets",
		"can I pay with a voucher",
	} {
		if r := d.CheckTurn(turn); r.ShouldEscalate {
			t.Fatalf("turn %q escalated: %+v", turn, r)
		}
	}
}

func TestDTMFZeroAlwaysTriggers(t *testing.T) {
	t.Parallel()

	d := newDetector(t, EscalationConfig{Enabled: true})
	r := d.CheckDTMF("0")
	if !r.ShouldEscalate {
		t.Fatal("DTMF 0 should escalate")
	}
	if r.Trigger != TriggerDTMF {
		t.Errorf("trigger = %q, want dtmf", r.Trigger)
	}
	if r.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0", r.Confidence)
	}
}

func TestOtherDigitsDoNotTrigger(t *testing.T) {
	t.Parallel()

	d := newDetector(t, EscalationConfig{Enabled: true})
	for _, digit := range []string{"1", "5", "9", "#", "*"} {
		if r := d.CheckDTMF(digit); r.ShouldEscalate {
			t.Errorf("digit %q escalated", digit)
		}
	}
}

func TestDisabledDetectorNeverTriggers(t *testing.T) {
	t.Parallel()

	d := newDetector(t, EscalationConfig{Enabled: false, MaxTurnsBeforeEscalation: 1})
	if r := d.CheckTurn("speak to a human, this is ridiculous"); r.ShouldEscalate {
		t.Errorf("disabled detector escalated on turn: %+v", r)
	}
	if r := d.CheckDTMF("0"); r.ShouldEscalate {
		t.Errorf("disabled detector escalated on DTMF: %+v", r)
	}
}

func TestBadAngerPatternRejected(t *testing.T) {
	t.Parallel()

	_, err := NewEscalationDetector(EscalationConfig{
		Enabled:       true,
		AngerPatterns: []string{"(unclosed"},
	})
	if err == nil {
		t.Fatal("invalid regex should be rejected")
	}
}

func TestJaccard(t *testing.T) {
	t.Parallel()

	if got := jaccard("where is my order", "where is my order"); got != 1 {
		t.Errorf("identical texts: jaccard = %v, want 1", got)
	}
	if got := jaccard("hello there", "completely different words"); got != 0 {
		t.Errorf("disjoint texts: jaccard = %v, want 0", got)
	}
	// "Where is my order?" vs "where is my order please" → 4 shared of 5 union.
	got := jaccard("Where is my order?", "where is my order please")
	if got < 0.79 || got > 0.81 {
		t.Errorf("jaccard = %v, want 0.8", got)
	}
}
