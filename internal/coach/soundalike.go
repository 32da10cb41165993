package coach

import (
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/anneliv/orato/internal/segmenter"
)

// soundalikeJW is the Jaro-Winkler floor for two phonetically matched words
// to count as a sound-alike pair rather than a coincidental code collision.
const soundalikeJW = 0.65

// soundalikeFeedback looks for distinct repeated words that share a Double
// Metaphone code. When a speaker leans on several words that sound alike,
// the repetition is usually a pronunciation crutch rather than a vocabulary
// gap, so it earns a dedicated pronunciation-focus item.
func soundalikeFeedback(reps []segmenter.RepetitionRecord) (Feedback, bool) {
	groups := soundalikeGroups(reps)
	if len(groups) == 0 {
		return Feedback{}, false
	}

	// Report the largest group only; one focused tip beats three.
	g := groups[0]
	return Feedback{
		Category: CategoryPronunciation,
		Kind:     KindTip,
		Message:  fmt.Sprintf("Several of your repeated words sound alike: %s.", strings.Join(g, ", ")),
		Emoji:    "👄",
		Advice:   "Practise these words in isolation, exaggerating the sounds that differ between them.",
		Priority: PriorityMedium,
	}, true
}

// soundalikeGroups clusters the repeated words by phonetic code and returns
// groups of two or more, largest first. Words inside a group are confirmed
// with Jaro-Winkler similarity to filter out loose metaphone collisions.
func soundalikeGroups(reps []segmenter.RepetitionRecord) [][]string {
	byCode := make(map[string][]string)
	for _, r := range reps {
		primary, secondary := matchr.DoubleMetaphone(r.Word)
		for _, code := range []string{primary, secondary} {
			if code == "" {
				continue
			}
			byCode[code] = append(byCode[code], r.Word)
		}
	}

	seen := make(map[string]bool)
	var groups [][]string
	for _, words := range byCode {
		group := confirmPairs(dedupe(words))
		if len(group) < 2 {
			continue
		}
		key := strings.Join(group, "|")
		if seen[key] {
			continue
		}
		seen[key] = true
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return len(groups[i]) > len(groups[j])
	})
	return groups
}

// confirmPairs keeps only words that are string-similar to at least one
// other word in the candidate group.
func confirmPairs(words []string) []string {
	if len(words) < 2 {
		return nil
	}
	var confirmed []string
	for i, w := range words {
		for j, other := range words {
			if i == j {
				continue
			}
			if matchr.JaroWinkler(w, other, false) >= soundalikeJW {
				confirmed = append(confirmed, w)
				break
			}
		}
	}
	return confirmed
}

func dedupe(words []string) []string {
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}
