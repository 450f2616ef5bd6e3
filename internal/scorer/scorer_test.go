package scorer

import (
	"math"
	"testing"

	"bogofilter-go/internal/wordlist"
)

// TestEmptyTrainingFisherReturnsROBX is end-to-end scenario 1: robn=0,
// Fisher returns spamicity = ROBX = 0.415, verdict UNSURE with default
// cutoffs.
func TestEmptyTrainingFisherReturnsROBX(t *testing.T) {
	cfg := Config{Algorithm: Fisher, SpamCutoff: 0.95, HamCutoff: 0.10}
	score := cfg.Classify(nil)
	if math.Abs(score.Spamicity-DefaultROBX) > 1e-9 {
		t.Errorf("spamicity = %v, want %v", score.Spamicity, DefaultROBX)
	}
	if score.Robn != 0 {
		t.Errorf("robn = %d, want 0", score.Robn)
	}
	if score.Verdict != Unsure {
		t.Errorf("verdict = %v, want Unsure", score.Verdict)
	}
}

// TestSymmetricEvidenceFisherIsUnsure is end-to-end scenario 2.
func TestSymmetricEvidenceFisherIsUnsure(t *testing.T) {
	cfg := Config{Algorithm: Fisher, MinDev: DefaultMinDev, ROBS: DefaultROBS, ROBX: DefaultROBX,
		SpamCutoff: 0.90, HamCutoff: 0.10}

	counts := wordlist.Counts{MsgsGood: 1, MsgsSpam: 1}
	pBuy, _ := cfg.TokenProb(counts, 0, 1)   // buy: spam-only
	pMeeting, _ := cfg.TokenProb(counts, 1, 0) // meeting: ham-only

	score := cfg.Classify([]TokenEvidence{
		{Word: "buy", Prob: pBuy},
		{Word: "meeting", Prob: pMeeting},
	})

	if score.Verdict != Unsure {
		t.Errorf("verdict = %v, want Unsure (spamicity=%v)", score.Verdict, score.Spamicity)
	}
	if math.Abs(score.Spamicity-0.5) > 0.15 {
		t.Errorf("spamicity = %v, want close to 0.5", score.Spamicity)
	}
}

// TestHeavySpamEvidenceYieldsSpamVerdict approximates end-to-end scenario 3's
// spam side: overwhelming one-sided evidence should drive spamicity near 1
// and the verdict to Spam.
func TestHeavySpamEvidenceYieldsSpamVerdict(t *testing.T) {
	cfg := Config{Algorithm: Fisher, ROBS: DefaultROBS, ROBX: DefaultROBX,
		SpamCutoff: 0.90, HamCutoff: 0.10}
	counts := wordlist.Counts{MsgsGood: 1000, MsgsSpam: 1000}

	p, ok := cfg.TokenProb(counts, 0, 1000)
	if !ok {
		t.Fatal("expected viagra token to contribute")
	}
	evidence := []TokenEvidence{{Word: "viagra", Prob: p}, {Word: "viagra", Prob: p}, {Word: "viagra", Prob: p}}
	score := cfg.Classify(evidence)
	if score.Verdict != Spam {
		t.Errorf("verdict = %v, want Spam (spamicity=%v)", score.Verdict, score.Spamicity)
	}
	if score.Spamicity < 0.99 {
		t.Errorf("spamicity = %v, want >= 0.99", score.Spamicity)
	}
}

// TestMonotoneTraining is spec P3: adding more SPAM registrations of a token
// (holding HAM fixed at zero) cannot decrease its per-token probability.
func TestMonotoneTraining(t *testing.T) {
	cfg := Config{Algorithm: Robinson, ROBS: DefaultROBS, ROBX: DefaultROBX}
	counts := wordlist.Counts{MsgsGood: 10, MsgsSpam: 10}

	prev := 0.0
	for _, b := range []uint32{1, 2, 5, 10, 50} {
		p, _ := cfg.TokenProb(counts, 0, b)
		if p < prev {
			t.Errorf("probability decreased at b=%d: %v < %v", b, p, prev)
		}
		prev = p
	}
}

// TestBoundedProbability is spec P4.
func TestBoundedProbability(t *testing.T) {
	algos := []Algorithm{Graham, Robinson, Fisher}
	counts := wordlist.Counts{MsgsGood: 100, MsgsSpam: 100}
	for _, a := range algos {
		cfg := Config{Algorithm: a, ROBS: DefaultROBS, ROBX: DefaultROBX}
		for g := uint32(0); g <= 20; g += 4 {
			for b := uint32(0); b <= 20; b += 4 {
				p, _ := cfg.TokenProb(counts, g, b)
				if p < 0 || p > 1 {
					t.Fatalf("algo=%v g=%d b=%d: p=%v out of [0,1]", a, g, b, p)
				}
				if a == Graham && p != UnknownProb {
					if p < 0.01 || p > 0.99 {
						t.Errorf("graham g=%d b=%d: p=%v out of [0.01,0.99]", g, b, p)
					}
				}
			}
		}
	}
}

// TestMinDevFilterExcludesNeutralTokens is spec P5.
func TestMinDevFilterExcludesNeutralTokens(t *testing.T) {
	cfg := Config{Algorithm: Robinson, MinDev: 0.1, ROBS: DefaultROBS, ROBX: DefaultROBX}
	counts := wordlist.Counts{MsgsGood: 100, MsgsSpam: 100}

	// A token with g==b should land very close to 0.5 and therefore not
	// contribute under a MinDev of 0.1.
	_, contributes := cfg.TokenProb(counts, 50, 50)
	if contributes {
		t.Error("expected neutral token to be filtered by MinDev")
	}

	_, contributes = cfg.TokenProb(counts, 0, 100)
	if !contributes {
		t.Error("expected strongly spammy token to contribute")
	}
}

func TestGrahamTopNKeepsMostExtreme(t *testing.T) {
	tokens := make([]TokenEvidence, 0, 20)
	for i := 0; i < 20; i++ {
		p := 0.5 + float64(i)*0.02
		tokens = append(tokens, TokenEvidence{Word: string(rune('a' + i)), Prob: p})
	}
	top := grahamTopN(tokens, 15)
	if len(top) != 15 {
		t.Fatalf("len(top) = %d, want 15", len(top))
	}
	// The most extreme token (largest index, largest |0.5-p|) must be kept.
	found := false
	for _, e := range top {
		if e.Word == string(rune('a'+19)) {
			found = true
		}
	}
	if !found {
		t.Error("expected most extreme token to survive top-N selection")
	}
}

func TestChi2QIsProbability(t *testing.T) {
	for _, x := range []float64{0, 1, 10, 100, 1000, 10000} {
		q := chi2Q(x, 20)
		if q < 0 || q > 1 {
			t.Errorf("chi2Q(%v, 20) = %v, out of [0,1]", x, q)
		}
	}
}

func TestChi2QDecreasesWithX(t *testing.T) {
	prev := chi2Q(0, 10)
	for _, x := range []float64{1, 5, 20, 100} {
		q := chi2Q(x, 10)
		if q > prev {
			t.Errorf("chi2Q should be non-increasing in x: q(%v)=%v > prev=%v", x, q, prev)
		}
		prev = q
	}
}
