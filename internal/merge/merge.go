// Package merge folds per-source XMLTV documents into one guide.
package merge

import (
	"github.com/raffaelramalhorosa/epgmerge/internal/models"
	"github.com/raffaelramalhorosa/epgmerge/internal/store"
	"github.com/raffaelramalhorosa/epgmerge/internal/window"
	"github.com/raffaelramalhorosa/epgmerge/internal/xmltv"
)

// Stats counts what happened to the records of one applied document.
type Stats struct {
	Channels            int
	DroppedChannels     int // duplicate or missing id
	Programmes          int
	DuplicateProgrammes int
	OutsideWindow       int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Channels += o.Channels
	s.DroppedChannels += o.DroppedChannels
	s.Programmes += o.Programmes
	s.DuplicateProgrammes += o.DuplicateProgrammes
	s.OutsideWindow += o.OutsideWindow
}

// Engine applies documents to a Store in the order they are given. Documents
// must be applied from a single goroutine in source-list order for earlier
// sources to take precedence.
type Engine struct {
	win   window.Window
	store *store.Store
}

// New returns an Engine that keeps programmes overlapping win in st.
func New(win window.Window, st *store.Store) *Engine {
	return &Engine{win: win, store: st}
}

// Apply merges doc into the store. Programmes outside the window are dropped
// before deduplication.
func (e *Engine) Apply(doc *models.Document) Stats {
	var st Stats

	for _, ch := range doc.Channels {
		if e.store.AddChannel(ch) {
			st.Channels++
		} else {
			st.DroppedChannels++
		}
	}

	for _, p := range doc.Programmes {
		start := xmltv.ParseTime(p.Start())
		stop := xmltv.ParseTime(p.Stop())
		if !e.win.Intersects(start, stop) {
			st.OutsideWindow++
			continue
		}

		if e.store.AddProgramme(p) {
			st.Programmes++
		} else {
			st.DuplicateProgrammes++
		}
	}

	return st
}
