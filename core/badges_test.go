package core

import "testing"

func TestValidateBadgeID(t *testing.T) {
	if err := ValidateBadgeID("primo-appunto"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := ValidateBadgeID("bad badge"); err == nil {
		t.Fatalf("expected invalid badge err")
	}
	if err := ValidateBadgeID("  "); err == nil {
		t.Fatalf("expected empty badge err")
	}
}

func TestBadgeUnlockedBy(t *testing.T) {
	b := Badge{ID: "voce-del-forum", RequirementType: ReqCommentsPosted, RequirementValue: 3}
	if b.UnlockedBy(2) {
		t.Fatal("2 comments should not unlock")
	}
	if !b.UnlockedBy(3) || !b.UnlockedBy(7) {
		t.Fatal("threshold reached but not unlocked")
	}
}

func TestDefaultCatalog(t *testing.T) {
	seen := map[BadgeID]struct{}{}
	for _, b := range DefaultCatalog() {
		if err := ValidateBadgeID(b.ID); err != nil {
			t.Fatalf("catalog badge %q: %v", b.ID, err)
		}
		if _, dup := seen[b.ID]; dup {
			t.Fatalf("duplicate badge id %q", b.ID)
		}
		seen[b.ID] = struct{}{}
		if b.RequirementValue <= 0 {
			t.Fatalf("badge %q has non-positive threshold", b.ID)
		}
	}
}
