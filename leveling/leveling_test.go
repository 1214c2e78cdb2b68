package leveling

import "testing"

func TestLevelFromXP(t *testing.T) {
	testCases := []struct {
		xp       int
		expected int
	}{
		{xp: 0, expected: 1},
		{xp: 50, expected: 1},
		{xp: 99, expected: 1},
		{xp: 100, expected: 2},
		{xp: 105, expected: 2},
		{xp: 399, expected: 4},
		{xp: 400, expected: 5},
		{xp: 500, expected: 5},
		{xp: 501, expected: 6},
		{xp: 800, expected: 6},
		{xp: 801, expected: 7},
		{xp: 2000, expected: 10},
		{xp: 2001, expected: 11},
		{xp: 2800, expected: 11},
		{xp: 2801, expected: 12},
		{xp: 10000, expected: 20},
		{xp: 10001, expected: 21},
		{xp: 11000, expected: 21},
		{xp: 11001, expected: 22},
		{xp: 88001, expected: 99},
		{xp: 1000000, expected: 99},
		{xp: -5, expected: 1},
	}

	for _, tc := range testCases {
		if got := LevelFromXP(tc.xp); got != tc.expected {
			t.Errorf("LevelFromXP(%d) = %d, expected %d", tc.xp, got, tc.expected)
		}
	}
}

func TestLevelFromXPMonotonic(t *testing.T) {
	prev := 1
	for xp := 0; xp <= 120000; xp += 7 {
		level := LevelFromXP(xp)
		if level < prev {
			t.Fatalf("level decreased from %d to %d at xp=%d", prev, level, xp)
		}
		if level > MaxLevel {
			t.Fatalf("level %d exceeds cap at xp=%d", level, xp)
		}
		prev = level
	}
}

func TestXPToNextLevel(t *testing.T) {
	testCases := []struct {
		xp       int
		expected int
	}{
		{xp: 0, expected: 100},
		{xp: 95, expected: 5},
		{xp: 100, expected: 100},
		{xp: 450, expected: 51}, // level 5 slice runs to the tier 2 start
		{xp: 501, expected: 300},
		{xp: 2001, expected: 800},
	}

	for _, tc := range testCases {
		if got := XPToNextLevel(tc.xp); got != tc.expected {
			t.Errorf("XPToNextLevel(%d) = %d, expected %d", tc.xp, got, tc.expected)
		}
	}

	// Cap: no further progression at 99.
	if got := XPToNextLevel(500000); got != 0 {
		t.Errorf("XPToNextLevel at cap = %d, expected 0", got)
	}
	if got := LevelProgressPercent(500000); got != 100 {
		t.Errorf("LevelProgressPercent at cap = %d, expected 100", got)
	}
}

func TestLevelProgressPercent(t *testing.T) {
	if got := LevelProgressPercent(0); got != 0 {
		t.Errorf("progress at xp=0 = %d, expected 0", got)
	}
	if got := LevelProgressPercent(50); got != 50 {
		t.Errorf("progress at xp=50 = %d, expected 50", got)
	}
	if got := LevelProgressPercent(150); got != 50 {
		t.Errorf("progress at xp=150 = %d, expected 50", got)
	}
	for xp := 0; xp <= 30000; xp += 13 {
		p := LevelProgressPercent(xp)
		if p < 0 || p > 100 {
			t.Fatalf("progress %d out of range at xp=%d", p, xp)
		}
	}
}

func TestGradeInfo(t *testing.T) {
	testCases := []struct {
		level    int
		name     string
		badge    string
	}{
		{level: 1, name: "새싹", badge: ""},
		{level: 5, name: "새싹", badge: ""},
		{level: 6, name: "작가", badge: ""},
		{level: 10, name: "작가", badge: ""},
		{level: 11, name: "베스트", badge: "silver"},
		{level: 20, name: "베스트", badge: "silver"},
		{level: 21, name: "마스터", badge: "gold"},
		{level: 99, name: "마스터", badge: "gold"},
	}

	for _, tc := range testCases {
		g := GradeInfo(tc.level)
		if g.Name != tc.name || g.Badge != tc.badge {
			t.Errorf("GradeInfo(%d) = %q/%q, expected %q/%q", tc.level, g.Name, g.Badge, tc.name, tc.badge)
		}
	}
}

func TestBenefits(t *testing.T) {
	if CanDonate(5) || !CanDonate(6) {
		t.Error("CanDonate boundary must be level 6")
	}
	if AttendanceInk(5) != 3 || AttendanceInk(6) != 4 {
		t.Error("AttendanceInk boundary must be level 6")
	}
	if ExtraWriteInkCost(20) != 5 || ExtraWriteInkCost(21) != 4 {
		t.Error("ExtraWriteInkCost boundary must be level 21")
	}
	if ReadInkCost(10) != 2 || ReadInkCost(11) != 1 {
		t.Error("ReadInkCost boundary must be level 11")
	}
}
