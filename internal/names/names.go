// Package names implements the C5 heuristic name layer: deterministic
// name-list and English-word-frequency lookup supplementing C4.
//
// The corpora are embedded with go:embed, following the web-asset
// embedding pattern allaspectsdev-tokenman uses (web/embed.go), and loaded
// once behind a sync.Once per §9's "lazy module-level singleton ->
// process-wide initialized-once resource" guidance. The three lists here
// are curated, representative subsets — not a literal ~10,000/~275,000
// entry corpus — documented as such rather than pretending to ship the
// full SUBTLEX frequency table.
package names

import (
	_ "embed"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

//go:embed data/given_names.txt
var givenNamesRaw string

//go:embed data/english_words.txt
var englishWordsRaw string

//go:embed data/excluded_words.txt
var excludedWordsRaw string

// DefaultFrequencyThreshold distinguishes "rare" from "common" English
// words, per §4.5.
const DefaultFrequencyThreshold = 10000

var candidatePattern = regexp.MustCompile(`\b[A-Za-z][A-Za-z']+\b`)

// corpus holds the three read-only word sets, loaded once.
type corpus struct {
	names     map[string]bool
	wordFreq  map[string]int
	excluded  map[string]bool
}

var (
	once      sync.Once
	loaded    *corpus
)

func load() *corpus {
	once.Do(func() {
		c := &corpus{
			names:    map[string]bool{},
			wordFreq: map[string]int{},
			excluded: map[string]bool{},
		}
		for _, line := range strings.Split(givenNamesRaw, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			c.names[strings.ToLower(line)] = true
		}
		for _, line := range strings.Split(englishWordsRaw, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.Split(line, "\t")
			if len(parts) != 2 {
				continue
			}
			freq, err := strconv.Atoi(parts[1])
			if err != nil {
				continue
			}
			c.wordFreq[strings.ToLower(parts[0])] = freq
		}
		for _, line := range strings.Split(excludedWordsRaw, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			c.excluded[strings.ToLower(line)] = true
		}
		loaded = c
	})
	return loaded
}

// Detection is one heuristic-name-layer match.
type Detection struct {
	Value      string
	StartIndex int
	EndIndex   int
	Confidence float64
}

// Scan applies the confidence table of §4.5 over text, using a frequency
// threshold (pass 0 for the default 10,000) to distinguish rare from
// common English words.
func Scan(text string, freqThreshold int) []Detection {
	if freqThreshold <= 0 {
		freqThreshold = DefaultFrequencyThreshold
	}
	c := load()
	var out []Detection

	matches := candidatePattern.FindAllStringIndex(text, -1)
	for _, m := range matches {
		start, end := m[0], m[1]
		word := text[start:end]
		if len([]rune(word)) < 3 {
			continue
		}
		lower := strings.ToLower(word)
		if c.excluded[lower] {
			continue
		}

		isName := c.names[lower]
		freq, isEnglish := c.wordFreq[lower]
		capitalized := isCapitalized(word)

		confidence, skip := confidenceFor(isName, isEnglish, capitalized, freq, freqThreshold)
		if skip {
			continue
		}

		if atSentenceStart(text, start) {
			if !isName {
				continue
			}
			if capitalized {
				confidence -= 0.15
			} else {
				confidence -= 0.20
			}
			if confidence <= 0 {
				continue
			}
		}

		out = append(out, Detection{Value: word, StartIndex: start, EndIndex: end, Confidence: confidence})
	}
	return out
}

// confidenceFor implements the table in §4.5.
func confidenceFor(isName, isEnglish, capitalized bool, freq, threshold int) (confidence float64, skip bool) {
	switch {
	case isName && !isEnglish && capitalized:
		return 0.85, false
	case isName && !isEnglish && !capitalized:
		return 0.65, false
	case isName && isEnglish && capitalized && freq < threshold:
		return 0.70, false
	case isName && isEnglish && capitalized && freq >= threshold:
		return 0.50, false
	case isName && isEnglish && !capitalized && freq < threshold:
		return 0.45, false
	case isName && isEnglish && !capitalized && freq >= threshold:
		return 0, true
	case !isName && !isEnglish && capitalized:
		return 0.70, false
	case !isName && !isEnglish && !capitalized:
		return 0, true
	case !isName && isEnglish:
		return 0, true
	default:
		return 0, true
	}
}

func isCapitalized(word string) bool {
	if word == "" {
		return false
	}
	r := rune(word[0])
	return r >= 'A' && r <= 'Z'
}

// atSentenceStart reports whether the candidate at byte offset start is the
// first word of the text or follows '.', '?', or '!' (skipping whitespace).
func atSentenceStart(text string, start int) bool {
	i := start - 1
	for i >= 0 && (text[i] == ' ' || text[i] == '\t' || text[i] == '\n') {
		i--
	}
	if i < 0 {
		return true
	}
	return text[i] == '.' || text[i] == '?' || text[i] == '!'
}
