package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		n         int
		ok        bool
		tier      Tier
		milestone bool
	}{
		{-1, false, "", false},
		{0, false, "", false},
		{2, false, "", false},
		{3, true, TierSprout, true},
		{6, true, TierSprout, false},
		{7, true, TierFire, true},
		{13, true, TierFire, false},
		{14, true, TierRocket, true},
		{21, true, TierTrophy, true},
		{22, true, TierTrophy, false},
		{30, true, TierMedal, true},
		{59, true, TierMedal, false},
		{60, true, TierStar, true},
		{90, true, TierCrown, true},
		{365, true, TierCrown, false},
	}
	for _, tt := range tests {
		c, ok := Classify(tt.n)
		assert.Equal(t, tt.ok, ok, "n=%d", tt.n)
		assert.Equal(t, tt.tier, c.Tier, "n=%d", tt.n)
		assert.Equal(t, tt.milestone, c.IsMilestone, "n=%d", tt.n)
	}
}

func TestClassify_HabitFormedVsGeneric(t *testing.T) {
	exact, ok := Classify(21)
	assert.True(t, ok)
	assert.Equal(t, "🏆", exact.Emoji)
	assert.Equal(t, "habit formed", exact.Label)
	assert.Equal(t, "21 days in a row. The habit is formed!", exact.Message)

	generic, ok := Classify(22)
	assert.True(t, ok)
	assert.Equal(t, "🏆", generic.Emoji)
	assert.Equal(t, "22 days in a row, habit formed!", generic.Message)
	assert.NotEqual(t, exact.Message, generic.Message)

	_, ok = Classify(2)
	assert.False(t, ok)
}

func TestIsMilestone(t *testing.T) {
	for _, m := range Milestones {
		assert.True(t, IsMilestone(m), m)
	}
	assert.False(t, IsMilestone(2))
	assert.False(t, IsMilestone(8))
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestCurrent(t *testing.T) {
	today := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		marked []string
		want   int
	}{
		{"empty", nil, 0},
		{"only today", []string{"2024-05-10"}, 1},
		{"run ending today", []string{"2024-05-08", "2024-05-09", "2024-05-10"}, 3},
		{"run ending yesterday", []string{"2024-05-07", "2024-05-08", "2024-05-09"}, 3},
		{"gap two days ago", []string{"2024-05-10", "2024-05-08", "2024-05-07"}, 1},
		{"ended before yesterday", []string{"2024-05-07", "2024-05-08"}, 0},
		{"duplicates and order", []string{"2024-05-09", "2024-05-10", "2024-05-09", "2024-05-08"}, 3},
		{"month boundary", []string{"2024-04-29", "2024-04-30", "2024-05-01"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var marked []time.Time
			for _, s := range tt.marked {
				marked = append(marked, day(s))
			}
			assert.Equal(t, tt.want, Current(marked, today))
		})
	}
}

func TestCurrent_CrossesMonth(t *testing.T) {
	today := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	marked := []time.Time{day("2024-04-29"), day("2024-04-30"), day("2024-05-01")}
	assert.Equal(t, 3, Current(marked, today))
}

func TestCurrent_TodayInLocalZone(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	// 00:30 local on May 10 is still May 9 in UTC; the local date counts.
	today := time.Date(2024, 5, 10, 0, 30, 0, 0, loc)
	assert.Equal(t, 1, Current([]time.Time{day("2024-05-10")}, today))
}
