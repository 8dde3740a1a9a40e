package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelForPoints_Thresholds(t *testing.T) {
	tests := []struct {
		points int
		level  Level
	}{
		{0, 1},
		{99, 1},
		{100, 2},
		{249, 2},
		{250, 3},
		{500, 4},
		{999, 4},
		{1000, 5},
		{1750, 6},
		{2750, 7},
		{4000, 8},
		{5500, 9},
		{7499, 9},
		{7500, 10},
		{9999, 10},
		{10000, 11},
		{12500, 12},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, LevelForPoints(Points(tt.points)), "points=%d", tt.points)
	}
}

func TestLevelForPoints_MonotoneAndAtLeastOne(t *testing.T) {
	previous := Level(0)
	for pts := 0; pts <= 30000; pts += 37 {
		level := LevelForPoints(Points(pts))
		assert.GreaterOrEqual(t, level, MinLevel)
		assert.GreaterOrEqual(t, level, previous)
		previous = level
	}
}

func TestLevel_RequiredPoints_RoundTrip(t *testing.T) {
	for level := Level(1); level <= 20; level++ {
		floor := level.RequiredPoints()
		assert.Equal(t, level, LevelForPoints(Points(floor)), "level %d floor %d", level, floor)
		if floor > 0 {
			assert.Equal(t, level-1, LevelForPoints(Points(floor-1)))
		}
	}
}

func TestNewUserID(t *testing.T) {
	id, err := NewUserID("5B3C1A9E-0B2F-4F7E-9D7A-2C3E4F5A6B7C")
	assert.NoError(t, err)
	assert.Equal(t, UserID("5b3c1a9e-0b2f-4f7e-9d7a-2c3e4f5a6b7c"), id)

	for _, bad := range []string{"", "not-a-uuid", "12345"} {
		_, err := NewUserID(bad)
		assert.ErrorIs(t, err, ErrInvalidID, "input %q", bad)
	}
}

func TestNewCounterName(t *testing.T) {
	c, err := NewCounterName(" Quizzes_Completed ")
	assert.NoError(t, err)
	assert.Equal(t, CounterQuizzesCompleted, c)

	_, err = NewCounterName("sessions")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewPointReason(t *testing.T) {
	r, err := NewPointReason("quiz_correct")
	assert.NoError(t, err)
	assert.Equal(t, ReasonQuizCorrect, r)

	_, err = NewPointReason("charity")
	assert.Error(t, err)
}

func TestPagination(t *testing.T) {
	p := NewPagination(0, 0)
	assert.Equal(t, 0, p.Offset())
	assert.Equal(t, DefaultPageSize, p.Limit())

	p = NewPagination(3, 500)
	assert.Equal(t, MaxPageSize, p.Limit())
	assert.Equal(t, 2*MaxPageSize, p.Offset())
}
