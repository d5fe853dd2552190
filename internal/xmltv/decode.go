// Package xmltv reads and writes XMLTV guide documents.
package xmltv

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed"
	xpp "github.com/mmcdole/goxpp"
	"golang.org/x/net/html/charset"

	"github.com/raffaelramalhorosa/epgmerge/internal/models"
)

var (
	ErrNotXMLTV  = errors.New("not an XMLTV document")
	ErrTruncated = errors.New("document ended before </tv>")

	errNoRoot = errors.New("no root element")
)

// sniffLen bounds how much of the input is kept for format detection.
const sniffLen = 4096

type wireChannel struct {
	XMLName xml.Name   `xml:"channel"`
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

type wireProgramme struct {
	XMLName xml.Name   `xml:"programme"`
	Attrs   []xml.Attr `xml:",any,attr"`
	Titles  []string   `xml:"title"`
	Inner   []byte     `xml:",innerxml"`
}

// Decode parses an XMLTV document. Elements other than <channel> and
// <programme> directly under <tv> are skipped. Non-UTF-8 input is transcoded
// according to its XML declaration. Input that is not well-formed XML, such
// as a bare '&', an undeclared entity or a mismatched end tag, is rejected.
func Decode(r io.Reader) (*models.Document, error) {
	rec := &prefixRecorder{r: r, limit: sniffLen}
	p := xpp.NewXMLPullParser(rec, true, charset.NewReaderLabel)

	if err := findRoot(p); err != nil {
		var se *xml.SyntaxError
		if errors.As(err, &se) || errors.Is(err, errNoRoot) {
			return nil, notXMLTV(rec.buf, err)
		}
		return nil, fmt.Errorf("parse xmltv: %w", err)
	}
	if p.Name != "tv" {
		return nil, notXMLTV(rec.buf, fmt.Errorf("root element is <%s>", p.Name))
	}

	doc := &models.Document{}
	for {
		event, err := p.Next()
		if err != nil {
			return nil, fmt.Errorf("parse xmltv: %w", err)
		}

		switch event {
		case xpp.EndDocument:
			return nil, ErrTruncated
		case xpp.EndTag:
			// children are consumed whole, so this is </tv>
			return doc, nil
		case xpp.StartTag:
			if err := decodeChild(p, doc); err != nil {
				return nil, fmt.Errorf("parse xmltv <%s>: %w", p.Name, err)
			}
		}
	}
}

func decodeChild(p *xpp.XMLPullParser, doc *models.Document) error {
	switch p.Name {
	case "channel":
		var ch wireChannel
		if err := p.DecodeElement(&ch); err != nil {
			return err
		}
		doc.Channels = append(doc.Channels, models.Channel{Attrs: ch.Attrs, Inner: ch.Inner})
	case "programme":
		var pr wireProgramme
		if err := p.DecodeElement(&pr); err != nil {
			return err
		}
		prog := models.Programme{Attrs: pr.Attrs, Inner: pr.Inner}
		if len(pr.Titles) > 0 {
			prog.Title = strings.TrimSpace(pr.Titles[0])
		}
		doc.Programmes = append(doc.Programmes, prog)
	default:
		return p.Skip()
	}
	return nil
}

func findRoot(p *xpp.XMLPullParser) error {
	for {
		event, err := p.Next()
		if err != nil {
			return err
		}
		switch event {
		case xpp.StartTag:
			return nil
		case xpp.EndDocument:
			return errNoRoot
		}
	}
}

// notXMLTV names the format of the input when gofeed recognises it, which is
// the usual case for a misconfigured source URL.
func notXMLTV(prefix []byte, cause error) error {
	switch gofeed.DetectFeedType(bytes.NewReader(prefix)) {
	case gofeed.FeedTypeRSS:
		return fmt.Errorf("%w: source serves an RSS feed", ErrNotXMLTV)
	case gofeed.FeedTypeAtom:
		return fmt.Errorf("%w: source serves an Atom feed", ErrNotXMLTV)
	case gofeed.FeedTypeJSON:
		return fmt.Errorf("%w: source serves a JSON feed", ErrNotXMLTV)
	}
	return fmt.Errorf("%w: %v", ErrNotXMLTV, cause)
}

type prefixRecorder struct {
	r     io.Reader
	buf   []byte
	limit int
}

func (p *prefixRecorder) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if room := p.limit - len(p.buf); room > 0 && n > 0 {
		p.buf = append(p.buf, b[:min(n, room)]...)
	}
	return n, err
}
