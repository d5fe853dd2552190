package models

import (
	"encoding/xml"
	"strings"
)

// Channel is a <channel> element. Attrs are kept in document order and Inner
// holds the raw child markup so the element can be re-emitted unchanged.
type Channel struct {
	Attrs []xml.Attr
	Inner []byte
}

// ID returns the provider-assigned channel id, or "" when absent.
func (c Channel) ID() string {
	return attr(c.Attrs, "id")
}

// Programme is a single scheduled broadcast (<programme> element).
type Programme struct {
	Attrs []xml.Attr
	Inner []byte

	// Title is the text of the first <title> child, whitespace-trimmed.
	Title string
}

// Channel returns the id of the channel the programme airs on.
func (p Programme) Channel() string { return attr(p.Attrs, "channel") }

// Start returns the raw start timestamp, or "" when absent.
func (p Programme) Start() string { return attr(p.Attrs, "start") }

// Stop returns the raw stop timestamp, or "" when absent.
func (p Programme) Stop() string { return attr(p.Attrs, "stop") }

// Key returns the identity used to detect duplicate programmes across sources.
// Timestamps are compared as raw strings, not as instants.
func (p Programme) Key() ProgrammeKey {
	return ProgrammeKey{
		Channel: p.Channel(),
		Start:   p.Start(),
		Stop:    p.Stop(),
		Title:   strings.TrimSpace(p.Title),
	}
}

// ProgrammeKey is comparable and can be used as a map key.
type ProgrammeKey struct {
	Channel string
	Start   string
	Stop    string
	Title   string
}

// Document is the parsed content of one XMLTV feed, or the merged guide.
type Document struct {
	Channels   []Channel
	Programmes []Programme
}

// FetchResult carries the outcome of a single source fetch through a channel.
type FetchResult struct {
	Index    int
	URL      string
	Document *Document
	Err      error
}

func attr(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
