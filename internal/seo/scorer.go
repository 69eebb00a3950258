// Package seo implements rule-based scoring of listing text. The
// scorer is pure and stateless; it is safe for concurrent use.
package seo

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Finding is one scored heuristic, in bucket evaluation order.
type Finding struct {
	Severity string `json:"severity"` // success / warning / error
	Message  string `json:"message"`
	Points   int    `json:"points_awarded"`
}

// Recommendation is an actionable suggestion derived from the findings.
type Recommendation struct {
	Priority string `json:"priority"` // high / medium / low
	Message  string `json:"message"`
}

// Result is the outcome of scoring one piece of text, 0-100.
type Result struct {
	Score           int              `json:"score"`
	Findings        []Finding        `json:"findings"`
	Recommendations []Recommendation `json:"recommendations"`
}

// ProductScore combines title and description scores. Overall weights
// the description more heavily because it carries more search text.
type ProductScore struct {
	Overall     int    `json:"overall_score"`
	Title       Result `json:"title"`
	Description Result `json:"description"`
}

const (
	titleMinLength = 50
	titleMaxLength = 70
	descMinLength  = 120
	descMaxLength  = 300
)

var (
	ctaPattern = regexp.MustCompile(`(?i)\b(perfect for|ideal for|great for|download|grab|get your|click|buy now|add to cart|check out|try)\b`)

	sentenceSplit = regexp.MustCompile(`[.!?]+`)

	educationalTerms = []string{
		"learn", "teach", "student", "classroom", "lesson", "practice",
		"skill", "grade", "activity", "worksheet", "printable",
		"curriculum", "education", "assessment", "standards", "review",
	}
)

// ScoreProduct scores title and description and combines them into an
// overall score, rounded from title*0.4 + description*0.6.
func ScoreProduct(title, description, keywords string) ProductScore {
	t := ScoreTitle(title, keywords)
	d := ScoreDescription(description, keywords)
	return ProductScore{
		Overall:     int(math.Round(float64(t.Score)*0.4 + float64(d.Score)*0.6)),
		Title:       t,
		Description: d,
	}
}

// ScoreTitle evaluates a listing title against five additive buckets:
// length, keyword presence, word count, punctuation cleanliness and
// capitalization. keywords is a comma-separated list of target phrases.
func ScoreTitle(title, keywords string) Result {
	var r Result
	// Character ranges count runes, not bytes, so accented text does
	// not land in the wrong length bucket.
	length := utf8.RuneCountInString(title)

	switch {
	case length >= titleMinLength && length <= titleMaxLength:
		r.add("success", "Title length is in the optimal 50-70 character range", 30)
	case length < titleMinLength:
		r.add("warning", "Title is shorter than 50 characters", 15)
		r.recommend("high", "Expand your title to 50-70 characters to use the full search snippet")
	default:
		r.add("warning", "Title is longer than 70 characters and may be truncated", 10)
		r.recommend("high", "Shorten your title to 70 characters or fewer")
	}

	lowerTitle := strings.ToLower(title)
	if kws := splitKeywords(keywords); len(kws) > 0 {
		found := false
		for _, kw := range kws {
			if strings.Contains(lowerTitle, kw) {
				found = true
				break
			}
		}
		if found {
			r.add("success", "Title contains a target keyword", 25)
		} else {
			r.add("error", "Title does not contain any target keyword", 0)
			r.recommend("high", "Include your primary keyword in the title")
		}
	} else {
		r.add("warning", "No target keywords provided for the title check", 0)
	}

	words := len(strings.Fields(title))
	switch {
	case words >= 5 && words <= 12:
		r.add("success", "Title word count is easy to scan (5-12 words)", 20)
	case words < 5:
		r.add("warning", "Title has fewer than 5 words", 10)
	default:
		r.add("warning", "Title has more than 12 words", 15)
	}

	if countPunctuation(title) <= 2 {
		r.add("success", "Title avoids excessive special characters", 15)
	} else {
		r.add("error", "Title contains more than 2 special characters", 0)
	}

	if firstRuneUpper(title) {
		r.add("success", "Title starts with a capital letter", 10)
	} else {
		r.add("warning", "Title does not start with a capital letter", 0)
	}

	r.clamp()
	return r
}

// ScoreDescription evaluates a listing description against five
// additive buckets: length, keyword density, readability, educational
// vocabulary and call-to-action presence.
func ScoreDescription(description, keywords string) Result {
	var r Result
	length := utf8.RuneCountInString(description)
	lower := strings.ToLower(description)
	wordCount := len(strings.Fields(description))

	switch {
	case length >= descMinLength && length <= descMaxLength:
		r.add("success", "Description length is in the optimal 120-300 character range", 35)
	case length < descMinLength:
		r.add("warning", "Description is shorter than 120 characters", 20)
		r.recommend("high", "Expand your description to at least 120 characters")
	default:
		r.add("warning", "Description is longer than 300 characters", 15)
	}

	if kws := splitKeywords(keywords); len(kws) > 0 && wordCount > 0 {
		occurrences := 0
		for _, kw := range kws {
			occurrences += strings.Count(lower, kw)
		}
		density := float64(occurrences) / float64(wordCount) * 100

		switch {
		case density >= 1 && density <= 3:
			r.add("success", "Keyword density is in the healthy 1-3% range", 25)
		case density < 1:
			r.add("warning", "Keyword density is below 1%", 15)
		default:
			r.add("warning", "Keyword density is above 3% and may read as stuffing", 10)
		}
	}

	avgWords := averageSentenceLength(description)
	switch {
	case avgWords <= 20:
		r.add("success", "Sentences are concise (20 words or fewer on average)", 20)
	case avgWords <= 25:
		r.add("warning", "Sentences average 21-25 words", 15)
	default:
		r.add("warning", "Sentences average more than 25 words", 10)
	}
	if !strings.ContainsAny(description, ".!?") {
		r.recommend("medium", "Break your description into sentences with punctuation")
	}

	termCount := 0
	for _, term := range educationalTerms {
		if strings.Contains(lower, term) {
			termCount++
		}
	}
	switch {
	case termCount >= 2:
		r.add("success", "Description uses educational vocabulary", 10)
	case termCount == 1:
		r.add("warning", "Description uses only one educational term", 7)
	default:
		r.add("error", "Description has no educational context terms", 0)
		r.recommend("medium", "Mention grade level, skills or classroom use to add educational context")
	}

	if ctaPattern.MatchString(description) {
		r.add("success", "Description includes a call to action", 10)
	} else {
		r.add("warning", "Description has no call to action", 0)
	}

	r.clamp()
	return r
}

func (r *Result) add(severity, message string, points int) {
	r.Findings = append(r.Findings, Finding{Severity: severity, Message: message, Points: points})
	r.Score += points
}

func (r *Result) recommend(priority, message string) {
	r.Recommendations = append(r.Recommendations, Recommendation{Priority: priority, Message: message})
}

func (r *Result) clamp() {
	if r.Score > 100 {
		r.Score = 100
	}
	if r.Score < 0 {
		r.Score = 0
	}
}

func splitKeywords(keywords string) []string {
	var out []string
	for _, kw := range strings.Split(keywords, ",") {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func countPunctuation(s string) int {
	n := 0
	for _, r := range s {
		if strings.ContainsRune("!@#$%^&*()", r) {
			n++
		}
	}
	return n
}

func firstRuneUpper(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func averageSentenceLength(text string) float64 {
	sentences := 0
	words := 0
	for _, part := range sentenceSplit.Split(text, -1) {
		n := len(strings.Fields(part))
		if n == 0 {
			continue
		}
		sentences++
		words += n
	}
	if sentences == 0 {
		return 0
	}
	return float64(words) / float64(sentences)
}
