// ABOUTME: Keyword-count language detection over sw, luo, kik, sheng and en.
// ABOUTME: Decision order is an explicit rule list; thresholds are fixed.

package lang

import (
	"regexp"
	"strings"
)

// Code identifies a detectable language variant.
type Code string

const (
	Swahili Code = "sw"
	Luo     Code = "luo"
	Gikuyu  Code = "kik"
	Sheng   Code = "sheng"
	English Code = "en"
)

// englishBonus is the virtual English score when the text looks English.
const englishBonus = 2

var swahiliKeywords = []string{
	"habari", "nisaidie", "jinsi", "afya", "elimu", "serikali", "tatizo", "shule",
	"mwili", "ugonjwa", "huduma", "karibu", "msaada", "sawa", "ndugu", "rafiki",
}

var luoKeywords = []string{
	"ani", "odhi", "ber", "mondo", "dhi", "en ka", "nadi", "neno", "nyathini", "tho",
	"rembo", "puonj", "wuon", "dhako", "nyathi", "kite", "bedo",
}

var gikuyuKeywords = []string{
	"mũno", "ũndũ", "wendo", "ũguo", "ndirũ", "thutha", "mũthoni", "rũgendo", "ndũ",
	"mũciĩ", "thayu", "kwigua", "mũciarwa", "ndire", "mũgetho",
}

// Sheng cues: informal Swahili/English mix.
var shengKeywords = []string{
	"nairobi", "msee", "mrembo", "mpangwingwi", "mambo", "poa", "sasa", "buda",
	"nimechoka", "mafuta", "form", "niko", "sina", "tumia", "kupull", "kuomoka",
}

var englishWords = regexp.MustCompile(`(?i)\b(the|and|is|are|you|we|health|school|form|help)\b`)

// Scores holds the raw keyword counts for one text.
type Scores struct {
	Swahili     int
	Luo         int
	Gikuyu      int
	Sheng       int
	EnglishLike bool
}

// English returns the virtual English score.
func (s Scores) English() int {
	if s.EnglishLike {
		return englishBonus
	}
	return 0
}

// Total is the sum of all five scores.
func (s Scores) Total() int {
	return s.Swahili + s.Luo + s.Gikuyu + s.Sheng + s.English()
}

// Share returns v as a fraction of Total, or 0 when nothing scored.
func (s Scores) Share(v int) float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(v) / float64(total)
}

// Score computes the raw scores for text.
func Score(text string) Scores {
	t := strings.ToLower(text)
	return Scores{
		Swahili:     countKeywords(t, swahiliKeywords),
		Luo:         countKeywords(t, luoKeywords),
		Gikuyu:      countKeywords(t, gikuyuKeywords),
		Sheng:       countKeywords(t, shengKeywords),
		EnglishLike: englishWords.MatchString(text),
	}
}

func countKeywords(t string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(t, k) {
			n++
		}
	}
	return n
}

// Rule is one step of the detection decision list.
type Rule struct {
	Name   string
	Match  func(Scores) bool
	Result Code
}

// Rules is the decision list in evaluation order. The fallback is not a rule;
// see fallback.
var Rules = []Rule{
	{Name: "luo-majority", Match: func(s Scores) bool { return s.Share(s.Luo) > 0.6 }, Result: Luo},
	{Name: "kik-majority", Match: func(s Scores) bool { return s.Share(s.Gikuyu) > 0.6 }, Result: Gikuyu},
	{Name: "sw-majority", Match: func(s Scores) bool { return s.Share(s.Swahili) > 0.6 }, Result: Swahili},
	{Name: "sheng-share", Match: func(s Scores) bool { return s.Share(s.Sheng) > 0.4 }, Result: Sheng},
	{Name: "english-like", Match: func(s Scores) bool { return s.EnglishLike }, Result: English},
}

// Detect returns the language code for text. It is total: empty input is Swahili.
func Detect(text string) Code {
	return Decide(Score(text))
}

// Decide applies the rule list to precomputed scores.
func Decide(s Scores) Code {
	for _, r := range Rules {
		if r.Match(s) {
			return r.Result
		}
	}
	return fallback(s)
}

// fallback picks the strictly highest score; earlier entries win ties.
func fallback(s Scores) Code {
	ranked := []struct {
		code  Code
		score int
	}{
		{Swahili, s.Swahili},
		{Luo, s.Luo},
		{Gikuyu, s.Gikuyu},
		{Sheng, s.Sheng},
		{English, s.English()},
	}
	best := ranked[0]
	for _, c := range ranked[1:] {
		if c.score > best.score {
			best = c
		}
	}
	return best.code
}

// DisplayName maps a code to the language name shown to users.
func DisplayName(c Code) string {
	switch c {
	case Swahili, Sheng:
		return "Swahili"
	case Luo:
		return "Luo"
	case Gikuyu:
		return "Gikuyu"
	default:
		return "English"
	}
}

// ReplyCode maps a detected code to the code replies are requested in.
func ReplyCode(c Code) Code {
	if c == Sheng {
		return Swahili
	}
	return c
}
