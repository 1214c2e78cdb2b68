package slots

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/odokhq/odok/models"
	"github.com/odokhq/odok/testutils"
)

func TestKey(t *testing.T) {
	testCases := []struct {
		category string
		isSeries bool
		expected string
	}{
		{category: "webnovel", isSeries: false, expected: "webnovel"},
		{category: "novel", isSeries: false, expected: "novel"},
		{category: "essay", isSeries: false, expected: "essay"},
		{category: "humanities", isSeries: false, expected: "humanities"},
		{category: "self-help", isSeries: false, expected: "self-help"},
		{category: "self-improvement", isSeries: false, expected: "self-help"},
		{category: "series", isSeries: false, expected: "series"},
		// Any series publication collapses into the global series slot.
		{category: "webnovel", isSeries: true, expected: "series"},
		{category: "novel", isSeries: true, expected: "series"},
		{category: "essay", isSeries: true, expected: "series"},
	}

	for _, tc := range testCases {
		got, err := Key(tc.category, tc.isSeries)
		if err != nil {
			t.Errorf("Key(%q, %v) returned error %v", tc.category, tc.isSeries, err)
			continue
		}
		if got != tc.expected {
			t.Errorf("Key(%q, %v) = %q, expected %q", tc.category, tc.isSeries, got, tc.expected)
		}
	}

	if _, err := Key("poetry", false); !errors.Is(err, ErrInvalidCategory) {
		t.Errorf("expected ErrInvalidCategory for unknown category, got %v", err)
	}
}

func TestOccupantFromBook(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	alloc := NewAllocator(db)
	author := testutils.SetupUser(t, db, "지은이", 10, 0)

	testutils.MustExec(t, db.Create(&models.Book{
		ID:         uuid.NewString(),
		AuthorID:   author.ID,
		AuthorName: author.Username,
		Category:   "essay",
		SlotKey:    "essay",
		DateKey:    "2024-01-02",
		Title:      "아침 산책",
	}), "creating book")

	occ, err := alloc.Occupant(context.Background(), "2024-01-02", "essay")
	if err != nil {
		t.Fatal(err)
	}
	if occ == nil {
		t.Fatal("expected occupant for taken slot")
	}
	if occ.AuthorName != "지은이" {
		t.Errorf("occupant = %q, expected 지은이", occ.AuthorName)
	}

	// Other slots and other days stay free.
	if occ, _ := alloc.Occupant(context.Background(), "2024-01-02", "novel"); occ != nil {
		t.Error("novel slot should be free")
	}
	if occ, _ := alloc.Occupant(context.Background(), "2024-01-03", "essay"); occ != nil {
		t.Error("tomorrow's essay slot should be free")
	}

	err = alloc.CheckFree(context.Background(), "2024-01-02", "essay")
	var taken *SlotTakenError
	if !errors.As(err, &taken) {
		t.Fatalf("expected SlotTakenError, got %v", err)
	}
	if taken.AuthorName != "지은이" {
		t.Errorf("error names %q, expected the occupant", taken.AuthorName)
	}
}

func TestClaimSeriesExclusive(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	alloc := NewAllocator(db)
	first := testutils.SetupUser(t, db, "first", 10, 0)
	second := testutils.SetupUser(t, db, "second", 10, 0)

	claim, err := alloc.ClaimSeries(context.Background(), "2024-01-02", first.ID, uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}
	if claim == nil {
		t.Fatal("expected claim record")
	}

	_, err = alloc.ClaimSeries(context.Background(), "2024-01-02", second.ID, uuid.NewString())
	var taken *SlotTakenError
	if !errors.As(err, &taken) {
		t.Fatalf("second claim: expected SlotTakenError, got %v", err)
	}
	if taken.AuthorName != "first" {
		t.Errorf("error names %q, expected the first claimer", taken.AuthorName)
	}

	// The pending claim also shows in the optimistic check even though no
	// book exists yet.
	occ, err := alloc.Occupant(context.Background(), "2024-01-02", "series")
	if err != nil {
		t.Fatal(err)
	}
	if occ == nil || !occ.Pending {
		t.Fatalf("expected pending occupant, got %+v", occ)
	}

	// A different day is unaffected.
	if _, err := alloc.ClaimSeries(context.Background(), "2024-01-03", second.ID, uuid.NewString()); err != nil {
		t.Fatalf("next day's claim should succeed: %v", err)
	}
}

func TestReleaseSeries(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	alloc := NewAllocator(db)
	user := testutils.SetupUser(t, db, "minji", 10, 0)

	claim, err := alloc.ClaimSeries(context.Background(), "2024-01-02", user.ID, uuid.NewString())
	if err != nil {
		t.Fatal(err)
	}

	if err := alloc.ReleaseSeries(context.Background(), claim); err != nil {
		t.Fatal(err)
	}

	// Released slot is claimable again.
	if _, err := alloc.ClaimSeries(context.Background(), "2024-01-02", user.ID, uuid.NewString()); err != nil {
		t.Fatalf("claim after release should succeed: %v", err)
	}

	// Releasing nil is a no-op.
	if err := alloc.ReleaseSeries(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
}

func TestBookUniqueIndexBacksSlotExclusivity(t *testing.T) {
	db := testutils.InitMemoryDB(t)
	author := testutils.SetupUser(t, db, "minji", 10, 0)

	book := func() *models.Book {
		return &models.Book{
			ID:         uuid.NewString(),
			AuthorID:   author.ID,
			AuthorName: author.Username,
			Category:   "novel",
			SlotKey:    "novel",
			DateKey:    "2024-01-02",
			Title:      "겨울 바다",
		}
	}

	testutils.MustExec(t, db.Create(book()), "creating first book")

	err := db.Create(book()).Error
	if err == nil {
		t.Fatal("second book in the same (date, slot) must be rejected")
	}
}
