package timeline

import (
	"testing"

	"github.com/starford/strata/internal/models"
)

func TestCursorStore_FirstPage(t *testing.T) {
	s := NewCursorStore()
	if _, ok := s.Get("git"); ok {
		t.Fatal("no entry expected before any page")
	}

	s.RecordPage("git", &models.Paging{Cursors: models.Cursors{Before: "b1", After: "a1"}}, models.DirectionAfter)
	p, ok := s.Get("git")
	if !ok {
		t.Fatal("entry expected after first page")
	}
	if p.Start == nil || p.Start.Before != "b1" || p.Start.After != "a1" {
		t.Errorf("start = %+v", p.Start)
	}
	if p.End != nil {
		t.Errorf("end = %+v, want unset", p.End)
	}
	if p.More {
		t.Error("more should default to false on the first page")
	}
}

func TestCursorStore_OlderPageMovesStart(t *testing.T) {
	s := NewCursorStore()
	s.RecordPage("git", &models.Paging{Cursors: models.Cursors{Before: "b1", After: "a1"}, More: models.Bool(true)}, models.DirectionAfter)
	s.RecordPage("git", &models.Paging{Cursors: models.Cursors{Before: "b2", After: "a2"}}, models.DirectionBefore)

	p, _ := s.Get("git")
	if p.Start.Before != "b2" {
		t.Errorf("start.before = %q, want b2", p.Start.Before)
	}
	if p.End == nil || p.End.Before != "b1" {
		t.Errorf("end = %+v, want backfilled from previous start", p.End)
	}
	if !p.More {
		t.Error("omitted more on a continuing page should be assumed true")
	}
}

func TestCursorStore_NewerPageMovesEnd(t *testing.T) {
	s := NewCursorStore()
	s.RecordPage("git", &models.Paging{Cursors: models.Cursors{Before: "b1", After: "a1"}, More: models.Bool(true)}, models.DirectionAfter)
	s.RecordPage("git", &models.Paging{Cursors: models.Cursors{After: "a2"}, More: models.Bool(false)}, models.DirectionAfter)

	p, _ := s.Get("git")
	if p.Start.After != "a1" {
		t.Errorf("start moved: %+v", p.Start)
	}
	if p.End == nil || p.End.After != "a2" {
		t.Errorf("end = %+v, want a2", p.End)
	}
	if p.More {
		t.Error("explicit more=false should be kept")
	}
}

func TestCursorStore_NilPagingIgnored(t *testing.T) {
	s := NewCursorStore()
	s.RecordPage("git", nil, models.DirectionAfter)
	if _, ok := s.Get("git"); ok {
		t.Error("nil paging should not create an entry")
	}
}

func TestCursorStore_ClearAndAnyMore(t *testing.T) {
	s := NewCursorStore()
	s.RecordPage("git", &models.Paging{More: models.Bool(true)}, models.DirectionAfter)
	s.RecordPage("fs", &models.Paging{More: models.Bool(false)}, models.DirectionAfter)
	if !s.AnyMore() {
		t.Fatal("git has more")
	}
	s.Clear("git")
	if s.AnyMore() {
		t.Error("only fs left, which has no more")
	}
	s.ClearAll()
	if _, ok := s.Get("fs"); ok {
		t.Error("fs should be gone after ClearAll")
	}
}
