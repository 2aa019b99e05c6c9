package streak

import "fmt"

type Tier string

const (
	TierSprout Tier = "sprout"
	TierFire   Tier = "fire"
	TierRocket Tier = "rocket"
	TierTrophy Tier = "trophy"
	TierMedal  Tier = "medal"
	TierStar   Tier = "star"
	TierCrown  Tier = "crown"
)

// Classification is the celebration shown for a streak length.
type Classification struct {
	Tier        Tier
	Emoji       string
	Label       string
	Message     string
	IsMilestone bool
}

type tier struct {
	min       int
	tier      Tier
	emoji     string
	label     string
	milestone string
}

// tiers is ordered from the highest threshold down; the first match wins.
var tiers = []tier{
	{90, TierCrown, "👑", "unstoppable", "90 days in a row. You are unstoppable!"},
	{60, TierStar, "⭐", "impressive", "60 days in a row. Impressive!"},
	{30, TierMedal, "🏅", "full month", "30 days in a row. A full month!"},
	{21, TierTrophy, "🏆", "habit formed", "21 days in a row. The habit is formed!"},
	{14, TierRocket, "🚀", "on a roll", "14 days in a row. Two weeks on a roll!"},
	{7, TierFire, "🔥", "full week", "7 days in a row. A full week!"},
	{3, TierSprout, "🌱", "sprouting", "3 days in a row. Your habit is sprouting!"},
}

// Milestones are the streak lengths with their own celebration message.
var Milestones = []int{3, 7, 14, 21, 30, 60, 90}

// Classify maps a streak length to its tier. ok is false below 3.
func Classify(n int) (Classification, bool) {
	for _, t := range tiers {
		if n < t.min {
			continue
		}
		c := Classification{
			Tier:  t.tier,
			Emoji: t.emoji,
			Label: t.label,
		}
		if n == t.min {
			c.IsMilestone = true
			c.Message = t.milestone
		} else {
			c.Message = fmt.Sprintf("%d days in a row, %s!", n, t.label)
		}
		return c, true
	}
	return Classification{}, false
}

// IsMilestone reports whether n is one of Milestones.
func IsMilestone(n int) bool {
	c, ok := Classify(n)
	return ok && c.IsMilestone
}
