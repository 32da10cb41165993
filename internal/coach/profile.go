package coach

import "time"

// emaAlpha is the learning rate for the running score averages. A low rate
// keeps the profile stable against single outlier sessions.
const emaAlpha = 0.1

// Profile is a user's running practice history, fed back into feedback
// generation for personalisation. The zero value is a fresh profile.
type Profile struct {
	// Running exponential moving averages of the three core scores.
	AvgFluency    float64 `json:"avg_fluency"`
	AvgClarity    float64 `json:"avg_clarity"`
	AvgConfidence float64 `json:"avg_confidence"`

	// Sessions counts recorded sessions.
	Sessions int `json:"sessions"`

	// Streak is the current consecutive-day practice streak.
	Streak int `json:"streak"`

	// LastSession is when the most recent session was recorded.
	LastSession time.Time `json:"last_session"`
}

// Update folds one session's scores into the profile.
//
// The first session seeds the averages directly; subsequent sessions apply
// an exponential moving average with [emaAlpha]. The streak increments when
// the session lands exactly one calendar day after the last recorded one,
// resets to 1 when the gap is larger, and is untouched by additional
// sessions on the same day.
func (p *Profile) Update(fluencyScore, clarityScore, confidenceScore float64, at time.Time) {
	if p.Sessions == 0 {
		p.AvgFluency = fluencyScore
		p.AvgClarity = clarityScore
		p.AvgConfidence = confidenceScore
		p.Streak = 1
	} else {
		p.AvgFluency = ema(p.AvgFluency, fluencyScore)
		p.AvgClarity = ema(p.AvgClarity, clarityScore)
		p.AvgConfidence = ema(p.AvgConfidence, confidenceScore)
		p.updateStreak(at)
	}
	p.Sessions++
	p.LastSession = at
}

func ema(avg, sample float64) float64 {
	return avg + emaAlpha*(sample-avg)
}

func (p *Profile) updateStreak(at time.Time) {
	last := calendarDay(p.LastSession)
	cur := calendarDay(at)

	switch {
	case cur.Equal(last):
		// Same day: streak unchanged.
	case cur.Equal(last.AddDate(0, 0, 1)):
		p.Streak++
	default:
		p.Streak = 1
	}
}

// weakestArea returns the lowest of the three tracked averages, or empty
// when the profile has no history yet.
func (p *Profile) weakestArea() (string, float64) {
	if p.Sessions == 0 {
		return "", 0
	}
	area, score := "fluency", p.AvgFluency
	if p.AvgClarity < score {
		area, score = "clarity", p.AvgClarity
	}
	if p.AvgConfidence < score {
		area, score = "confidence", p.AvgConfidence
	}
	return area, score
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
