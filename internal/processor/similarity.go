package processor

import (
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// DefaultSimilarityThreshold marks two normalized titles as the same car.
const DefaultSimilarityThreshold = 0.90

var dice = metrics.NewSorensenDice()

// NormalizeTitle case-folds and collapses all whitespace so that cosmetic
// differences never defeat the duplicate check.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// TitleSimilarity returns the Sorensen-Dice bigram similarity of two
// normalized titles, in [0, 1]. Identical normalized titles score 1.0;
// a single-character slip stays above the threshold while genuinely
// different cars fall well below it.
func TitleSimilarity(a, b string) float64 {
	return strutil.Similarity(NormalizeTitle(a), NormalizeTitle(b), dice)
}
