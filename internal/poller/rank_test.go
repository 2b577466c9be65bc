package poller

import (
	"testing"

	"github.com/trafficlens/datalayer/internal/model"
)

func TestRankByScore_DescendingAndStable(t *testing.T) {
	in := []model.LiveCluster{
		{ID: "a", Score: 2},
		{ID: "b", Score: 5},
		{ID: "c", Score: 2},
		{ID: "d", Score: 9},
	}
	got := RankByScore(in)

	wantOrder := []string{"d", "b", "a", "c"}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s (ties must keep input order)", i, got[i].ID, id)
		}
	}

	// input untouched
	if in[0].ID != "a" || in[3].ID != "d" {
		t.Fatal("RankByScore mutated its input")
	}
}

func TestTopN(t *testing.T) {
	in := []model.LiveCluster{
		{ID: "a", Score: 1}, {ID: "b", Score: 3}, {ID: "c", Score: 2},
	}
	got := TopN(in, 2)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "c" {
		t.Fatalf("TopN = %+v", got)
	}
	if got := TopN(in, 0); len(got) != 3 {
		t.Fatalf("TopN(0) should return all, got %d", len(got))
	}
	if got := TopN(in, 10); len(got) != 3 {
		t.Fatalf("TopN beyond length should return all, got %d", len(got))
	}
}

func TestAnnouncer_ReportsOnlyNewIDs(t *testing.T) {
	a := newAnnouncer(16)

	first := a.newlySeen(clusters("a", "b"))
	if len(first) != 2 {
		t.Fatalf("first pass fresh = %d, want 2", len(first))
	}
	second := a.newlySeen(clusters("a", "b", "c"))
	if len(second) != 1 || second[0].ID != "c" {
		t.Fatalf("second pass fresh = %+v, want only c", second)
	}
}
