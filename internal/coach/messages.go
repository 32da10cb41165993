package coach

// Motivational message pools, keyed by overall-score bracket. Selection is
// uniformly random within a pool so repeated sessions do not feel canned;
// the bracket itself is deterministic.

// Score bracket floors for motivational messages.
const (
	bracketExcellent = 85.0
	bracketGood      = 70.0
	bracketImproving = 50.0
)

var excellentMessages = []string{
	"Outstanding session! Your hard work is really showing.",
	"That was excellent — you should be proud of that delivery.",
	"Superb! Sessions like this one are what progress looks like.",
	"Brilliant work today. Your voice sounded strong and sure.",
}

var goodMessages = []string{
	"Solid session! You are building real momentum.",
	"Nice work — every session like this compounds.",
	"Good stuff today. Your consistency is paying off.",
	"Well done! A few more sessions like this and it will feel effortless.",
}

var improvingMessages = []string{
	"Progress is progress — you showed up and put in the work.",
	"Keep going. The rough sessions are where the growth happens.",
	"You are improving, even when it does not feel like it mid-session.",
	"Every minute of practice today moved you forward.",
}

var beginnerMessages = []string{
	"Starting is the hardest part, and you have already done it.",
	"Be patient with yourself — every speaker you admire started here.",
	"Today was a building block. Tomorrow stacks on top of it.",
	"One session at a time. You are laying the foundation.",
}

// MotivationalMessage picks a message at random from the pool matching the
// overall score bracket: ≥85 excellent, ≥70 good, ≥50 improving, else
// beginner. The selection is non-deterministic by design; tests should
// assert pool membership or inject a seeded source via [WithRand].
func (g *Generator) MotivationalMessage(overallScore float64) string {
	pool := messagePool(overallScore)
	return pool[g.pick(len(pool))]
}

func messagePool(score float64) []string {
	switch {
	case score >= bracketExcellent:
		return excellentMessages
	case score >= bracketGood:
		return goodMessages
	case score >= bracketImproving:
		return improvingMessages
	default:
		return beginnerMessages
	}
}
