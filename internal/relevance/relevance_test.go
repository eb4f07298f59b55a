package relevance

import (
	"math"
	"strings"
	"testing"
)

func TestExactPhraseInTitle(t *testing.T) {
	score, why := Score("CRISPR gene editing", "CRISPR gene editing in human cells", "")

	if score < 0.50 {
		t.Errorf("Expected score >= 0.50 for exact phrase in title, got %.3f", score)
	}
	if !strings.Contains(why, "exact phrase in title") {
		t.Errorf("Expected explanation to mention exact phrase in title, got %q", why)
	}
	if !strings.Contains(why, "all words in title") {
		t.Errorf("Expected explanation to mention all words in title, got %q", why)
	}
}

func TestExactPhraseInAbstractOnly(t *testing.T) {
	score, why := Score("quantum error", "An unrelated title", "We study quantum error correction at scale.")

	if !strings.Contains(why, "exact phrase in abstract") {
		t.Errorf("Expected abstract phrase trigger, got %q", why)
	}
	if !strings.Contains(why, "all words in abstract") {
		t.Errorf("Expected all-words-in-abstract trigger, got %q", why)
	}
	if score <= 0.20 {
		t.Errorf("Expected phrase plus word hits to accumulate, got %.3f", score)
	}
}

func TestBigramBonusOrdersCandidates(t *testing.T) {
	topic := "labor market AI impacts"
	withBigram, whyA := Score(topic, "Effects on the labor market from automation", "")
	withoutBigram, _ := Score(topic, "Labor relations in AI systems", "")

	if withBigram <= withoutBigram {
		t.Errorf("Expected bigram match (%.3f) to outrank scattered words (%.3f)", withBigram, withoutBigram)
	}
	if !strings.Contains(whyA, "bigrams matched") {
		t.Errorf("Expected explanation to mention bigrams, got %q", whyA)
	}
}

func TestEmptyTopic(t *testing.T) {
	score, why := Score("", "Any title", "Any abstract")
	if score != 0 {
		t.Errorf("Expected zero score for empty topic, got %.3f", score)
	}
	if why != "no topic" {
		t.Errorf("Expected 'no topic' explanation, got %q", why)
	}

	score, why = Score("!!!", "Any title", "Any abstract")
	if score != 0 || why != "no topic words" {
		t.Errorf("Expected punctuation-only topic to score zero, got %.3f %q", score, why)
	}
}

func TestNoOverlap(t *testing.T) {
	score, why := Score("zebrafish locomotion", "Macroeconomic policy outlook", "Interest rates and inflation.")
	if score != 0 {
		t.Errorf("Expected zero score with no overlap, got %.3f", score)
	}
	if why != "low keyword match" {
		t.Errorf("Expected fallback explanation, got %q", why)
	}
}

func TestScoreClampedToOne(t *testing.T) {
	score, _ := Score("deep learning", "Deep learning deep learning", "Deep learning for deep learning")
	if score > 1.0 {
		t.Errorf("Expected score clamped to 1.0, got %.3f", score)
	}
}

func TestScoreRoundedToThreeDecimals(t *testing.T) {
	// One of three words hits the title: 0.6 * (1/3) = 0.2 exactly after rounding.
	score, _ := Score("one two three", "one", "")
	scaled := score * 1000
	if math.Abs(scaled-math.Round(scaled)) > 1e-9 {
		t.Errorf("Expected score rounded to 3 decimals, got %v", score)
	}
}

func TestScoreIsPure(t *testing.T) {
	topic, title, abstract := "gene therapy", "Gene therapy advances", "New vectors for gene therapy."
	s1, w1 := Score(topic, title, abstract)
	s2, w2 := Score(topic, title, abstract)
	if s1 != s2 || w1 != w2 {
		t.Errorf("Expected identical results for identical inputs, got (%.3f,%q) and (%.3f,%q)", s1, w1, s2, w2)
	}
}

func TestSingleWordTopicSkipsBigrams(t *testing.T) {
	_, why := Score("transformers", "Transformers for vision", "")
	if strings.Contains(why, "bigrams") {
		t.Errorf("Expected no bigram trigger for single-word topic, got %q", why)
	}
}

func TestSubstringWordMatching(t *testing.T) {
	// Topic words match as substrings, so "genome" hits "metagenomes".
	_, why := Score("genome assembly", "Metagenomes of the human gut", "")
	if !strings.Contains(why, "1/2 words in title") {
		t.Errorf("Expected substring hit on metagenomes, got %q", why)
	}
}

func TestWordHitRatios(t *testing.T) {
	// Two of four topic words in the title only: 0.6 * 2/4 = 0.3.
	score, why := Score("labor market AI impacts", "The labor market", "")
	if !strings.Contains(why, "2/4 words in title") {
		t.Errorf("Expected word-ratio trigger, got %q", why)
	}
	// 0.3 word score plus 0.05 bigram bonus for "labor market".
	if math.Abs(score-0.35) > 1e-9 {
		t.Errorf("Expected score 0.350, got %.3f", score)
	}
}
