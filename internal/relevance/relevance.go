// Package relevance rates how well a record's title and abstract match a
// topic phrase. The score is deterministic and case-insensitive, and every
// contributing trigger is reported in a human-readable explanation that
// renderers surface as "why relevant".
package relevance

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// Score rates topic against a title/abstract pair, returning a value in
// [0,1] rounded to 3 decimals and a semicolon-joined explanation.
//
// Triggers, in order: exact phrase in title (+0.40) or abstract (+0.20);
// per-word hits weighted 0.60 for title and 0.30 for abstract; a bigram
// bonus of up to 0.15 (abstract bigrams count half); +0.10 when every topic
// word appears in the title, else +0.05 when every word appears in the
// abstract. Words and bigrams match as substrings of the lowercased text.
// Single-word topics have no bigrams.
func Score(topic, title, abstract string) (float64, string) {
	if strings.TrimSpace(topic) == "" {
		return 0, "no topic"
	}
	words := tokenize(topic)
	if len(words) == 0 {
		return 0, "no topic words"
	}

	topicLower := strings.ToLower(strings.TrimSpace(topic))
	titleLower := strings.ToLower(title)
	abstractLower := strings.ToLower(abstract)

	var score float64
	var reasons []string

	if strings.Contains(titleLower, topicLower) {
		score += 0.40
		reasons = append(reasons, "exact phrase in title")
	} else if strings.Contains(abstractLower, topicLower) {
		score += 0.20
		reasons = append(reasons, "exact phrase in abstract")
	}

	titleHits := countHits(words, titleLower)
	abstractHits := countHits(words, abstractLower)
	n := len(words)
	score += 0.60 * float64(titleHits) / float64(n)
	score += 0.30 * float64(abstractHits) / float64(n)
	if titleHits > 0 {
		reasons = append(reasons, fmt.Sprintf("%d/%d words in title", titleHits, n))
	}
	if abstractHits > 0 {
		reasons = append(reasons, fmt.Sprintf("%d/%d words in abstract", abstractHits, n))
	}

	if n >= 2 {
		titleBigrams := countBigrams(words, titleLower)
		abstractBigrams := countBigrams(words, abstractLower)
		pairs := float64(n - 1)
		score += math.Max(float64(titleBigrams)/pairs, float64(abstractBigrams)/pairs*0.5) * 0.15
		matched := titleBigrams
		if abstractBigrams > matched {
			matched = abstractBigrams
		}
		if matched > 0 {
			reasons = append(reasons, fmt.Sprintf("%d/%d bigrams matched", matched, n-1))
		}
	}

	if titleHits == n {
		score += 0.10
		reasons = append(reasons, "all words in title")
	} else if abstractHits == n {
		score += 0.05
		reasons = append(reasons, "all words in abstract")
	}

	score = math.Min(1, math.Max(0, score))
	score = math.Round(score*1000) / 1000

	if len(reasons) == 0 {
		return score, "low keyword match"
	}
	return score, strings.Join(reasons, "; ")
}

func tokenize(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

// countHits counts topic words appearing anywhere in text. Substring
// containment rewards partial matches ("genome" hits "metagenomes") the
// same way upstream keyword search does.
func countHits(words []string, text string) int {
	hits := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			hits++
		}
	}
	return hits
}

// countBigrams counts consecutive topic word pairs appearing space-joined
// in text.
func countBigrams(words []string, text string) int {
	count := 0
	for i := 0; i+1 < len(words); i++ {
		if strings.Contains(text, words[i]+" "+words[i+1]) {
			count++
		}
	}
	return count
}
