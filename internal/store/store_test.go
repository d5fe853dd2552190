package store_test

import (
	"encoding/xml"
	"sync"
	"testing"

	"github.com/raffaelramalhorosa/epgmerge/internal/models"
	"github.com/raffaelramalhorosa/epgmerge/internal/store"
)

func channel(id, inner string) models.Channel {
	return models.Channel{
		Attrs: []xml.Attr{{Name: xml.Name{Local: "id"}, Value: id}},
		Inner: []byte(inner),
	}
}

func programme(ch, start, stop, title string) models.Programme {
	return models.Programme{
		Attrs: []xml.Attr{
			{Name: xml.Name{Local: "start"}, Value: start},
			{Name: xml.Name{Local: "stop"}, Value: stop},
			{Name: xml.Name{Local: "channel"}, Value: ch},
		},
		Title: title,
	}
}

func TestAddChannelFirstWins(t *testing.T) {
	s := store.New()

	if !s.AddChannel(channel("x1", "M1")) {
		t.Fatal("expected first x1 to be retained")
	}
	if s.AddChannel(channel("x1", "M2")) {
		t.Fatal("expected duplicate x1 to be dropped")
	}
	if !s.AddChannel(channel("x2", "")) {
		t.Fatal("expected x2 to be retained")
	}

	chs := s.Channels()
	if len(chs) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(chs))
	}
	if string(chs[0].Inner) != "M1" {
		t.Errorf("x1 metadata = %q, want M1", chs[0].Inner)
	}
	if chs[1].ID() != "x2" {
		t.Errorf("second channel = %q, want x2", chs[1].ID())
	}
}

func TestAddChannelEmptyID(t *testing.T) {
	s := store.New()

	if s.AddChannel(models.Channel{}) {
		t.Fatal("channel without id should be dropped")
	}
	if s.AddChannel(channel("", "")) {
		t.Fatal("channel with empty id should be dropped")
	}
	if c, _ := s.Counts(); c != 0 {
		t.Fatalf("expected no channels, got %d", c)
	}
}

func TestAddProgrammeDeduplication(t *testing.T) {
	s := store.New()

	p := programme("x1", "20240101120000 +0000", "20240101130000 +0000", "News")
	if !s.AddProgramme(p) {
		t.Fatal("expected first programme to be retained")
	}
	if s.AddProgramme(programme("x1", "20240101120000 +0000", "20240101130000 +0000", "  News ")) {
		t.Fatal("expected programme with same trimmed title to be dropped")
	}

	// Same instant written differently is a different key.
	if !s.AddProgramme(programme("x1", "20240101140000 +0200", "20240101150000 +0200", "News")) {
		t.Fatal("expected differently written timestamps to be retained")
	}
	if !s.AddProgramme(programme("x2", "20240101120000 +0000", "20240101130000 +0000", "News")) {
		t.Fatal("expected programme on another channel to be retained")
	}

	if _, n := s.Counts(); n != 3 {
		t.Fatalf("expected 3 programmes, got %d", n)
	}
}

func TestDocumentPreservesOrder(t *testing.T) {
	s := store.New()
	for _, id := range []string{"c", "a", "b"} {
		s.AddChannel(channel(id, ""))
	}
	for _, title := range []string{"z", "y"} {
		s.AddProgramme(programme("a", "1", "2", title))
	}

	doc := s.Document()
	if doc.Channels[0].ID() != "c" || doc.Channels[1].ID() != "a" || doc.Channels[2].ID() != "b" {
		t.Fatal("channels not kept in insertion order")
	}
	if doc.Programmes[0].Title != "z" || doc.Programmes[1].Title != "y" {
		t.Fatal("programmes not kept in insertion order")
	}
}

func TestConcurrentAdds(t *testing.T) {
	s := store.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddChannel(channel("shared", ""))
			s.AddProgramme(programme("shared", "1", "2", "t"))
		}()
	}
	wg.Wait()

	c, p := s.Counts()
	if c != 1 || p != 1 {
		t.Fatalf("expected 1 channel and 1 programme, got %d and %d", c, p)
	}
}
