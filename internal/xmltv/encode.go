package xmltv

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/raffaelramalhorosa/epgmerge/internal/models"
)

// Encode writes doc as a UTF-8 XMLTV document with an XML declaration. All
// channels are written before all programmes, each group in slice order.
// Output is not indented.
func Encode(w io.Writer, doc *models.Document, generator string) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	root := xml.StartElement{Name: xml.Name{Local: "tv"}}
	if generator != "" {
		root.Attr = append(root.Attr, xml.Attr{Name: xml.Name{Local: "generator-info-name"}, Value: generator})
	}

	enc := xml.NewEncoder(w)
	if err := enc.EncodeToken(root); err != nil {
		return fmt.Errorf("encode <tv>: %w", err)
	}
	for _, ch := range doc.Channels {
		if err := enc.Encode(wireChannel{Attrs: ch.Attrs, Inner: ch.Inner}); err != nil {
			return fmt.Errorf("encode channel %q: %w", ch.ID(), err)
		}
	}
	for _, pr := range doc.Programmes {
		if err := enc.Encode(wireProgramme{Attrs: pr.Attrs, Inner: pr.Inner}); err != nil {
			return fmt.Errorf("encode programme on %q: %w", pr.Channel(), err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return fmt.Errorf("encode </tv>: %w", err)
	}
	return enc.Flush()
}
