package cluster

import (
	"strings"
	"unicode"
)

// Lexicon sentiment scorer. Deliberately coarse: it counts positive and
// negative word hits and maps the net count onto [-1, 1]. The clustering
// stage only needs a direction and rough magnitude, not a calibrated score.

var positiveWords = map[string]bool{
	"surge": true, "gain": true, "gains": true, "profit": true, "profits": true,
	"growth": true, "record": true, "breakthrough": true, "rally": true,
	"beat": true, "beats": true, "upgrade": true, "strong": true, "success": true,
	"win": true, "wins": true, "approval": true, "expand": true, "expansion": true,
	"soar": true, "soars": true, "boost": true, "optimism": true, "recovery": true,
	"milestone": true,
}

var negativeWords = map[string]bool{
	"loss": true, "losses": true, "crash": true, "fraud": true, "lawsuit": true,
	"decline": true, "bankruptcy": true, "layoff": true, "layoffs": true,
	"scandal": true, "miss": true, "misses": true, "plunge": true, "plunges": true,
	"downgrade": true, "weak": true, "failure": true, "recall": true,
	"probe": true, "investigation": true, "default": true, "slump": true,
	"warning": true, "shortfall": true, "fine": true, "penalty": true,
}

// scoreSentiment returns a sentiment in [-1, 1] for the given text: net
// word hit count divided by 5, clamped.
func scoreSentiment(text string) float64 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	net := 0
	for _, w := range words {
		if positiveWords[w] {
			net++
		} else if negativeWords[w] {
			net--
		}
	}
	score := float64(net) / 5.0
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}
