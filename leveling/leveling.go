// Package leveling maps accumulated XP to levels, grades, and level-gated
// benefit values. Everything here is a pure function so the economy rules can
// be unit-tested without a database.
package leveling

// Economy constants.
const (
	// MaxLevel is the level cap; progression stops here regardless of XP.
	MaxLevel = 99
	// XPPerInkSpent is the XP earned per unit of ink spent. Receiving ink
	// never grants XP; only spending does.
	XPPerInkSpent = 10
	// LevelUpInkBonus is the flat ink credited on a level-up transition,
	// once per transition regardless of how many levels were crossed.
	LevelUpInkBonus = 5
)

// tier is a contiguous band of levels whose XP span is divided evenly.
type tier struct {
	minLevel int
	maxLevel int
	startXP  int // XP at which minLevel begins
	perLevel int // XP width of one level inside the tier
}

var tiers = []tier{
	{minLevel: 1, maxLevel: 5, startXP: 0, perLevel: 100},
	{minLevel: 6, maxLevel: 10, startXP: 501, perLevel: 300},
	{minLevel: 11, maxLevel: 20, startXP: 2001, perLevel: 800},
	{minLevel: 21, maxLevel: 99, startXP: 10001, perLevel: 1000},
}

// LevelFromXP returns the level for an XP total. The mapping is monotonic
// non-decreasing and clamped to [1, MaxLevel].
func LevelFromXP(xp int) int {
	if xp < 0 {
		return 1
	}
	t := tierForXP(xp)
	level := t.minLevel + (xp-t.startXP)/t.perLevel
	if level > t.maxLevel {
		level = t.maxLevel
	}
	return level
}

func tierForXP(xp int) tier {
	for i := len(tiers) - 1; i > 0; i-- {
		if xp >= tiers[i].startXP {
			return tiers[i]
		}
	}
	return tiers[0]
}

func tierForLevel(level int) tier {
	for _, t := range tiers {
		if level >= t.minLevel && level <= t.maxLevel {
			return t
		}
	}
	if level < 1 {
		return tiers[0]
	}
	return tiers[len(tiers)-1]
}

// levelStartXP returns the XP at which the given level begins.
func levelStartXP(level int) int {
	t := tierForLevel(level)
	return t.startXP + (level-t.minLevel)*t.perLevel
}

// XPToNextLevel returns the XP still needed to reach the next level, or 0 at
// the level cap.
func XPToNextLevel(xp int) int {
	level := LevelFromXP(xp)
	if level >= MaxLevel {
		return 0
	}
	return levelStartXP(level+1) - xp
}

// LevelProgressPercent returns 0-100 progress through the current level's XP
// slice. Always 100 at the level cap.
func LevelProgressPercent(xp int) int {
	level := LevelFromXP(xp)
	if level >= MaxLevel {
		return 100
	}
	start := levelStartXP(level)
	end := levelStartXP(level + 1)
	return (xp - start) * 100 / (end - start)
}

// Grade describes the display band a level belongs to.
type Grade struct {
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Badge    string `json:"badge,omitempty"`
	MinLevel int    `json:"min_level"`
	MaxLevel int    `json:"max_level"`
}

var grades = []Grade{
	{Name: "새싹", Icon: "🌱", MinLevel: 1, MaxLevel: 5},
	{Name: "작가", Icon: "✍️", MinLevel: 6, MaxLevel: 10},
	{Name: "베스트", Icon: "🏆", Badge: "silver", MinLevel: 11, MaxLevel: 20},
	{Name: "마스터", Icon: "👑", Badge: "gold", MinLevel: 21, MaxLevel: 99},
}

// GradeInfo returns the grade band for a level.
func GradeInfo(level int) Grade {
	for _, g := range grades {
		if level >= g.MinLevel && level <= g.MaxLevel {
			return g
		}
	}
	if level < 1 {
		return grades[0]
	}
	return grades[len(grades)-1]
}

// CanDonate reports whether a user of the given level may gift ink to others.
func CanDonate(level int) bool {
	return level >= 6
}

// AttendanceInk returns the daily attendance reward for a level.
func AttendanceInk(level int) int {
	if level < 6 {
		return 3
	}
	return 4
}

// ExtraWriteInkCost returns the ink cost of the second daily publish.
func ExtraWriteInkCost(level int) int {
	if level < 21 {
		return 5
	}
	return 4
}

// ReadInkCost returns the ink cost to open another author's book.
func ReadInkCost(level int) int {
	if level < 11 {
		return 2
	}
	return 1
}
