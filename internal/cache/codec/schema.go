package codec

import "encoding/xml"

// schemaDoc is the XML shape of a cache entry's schema section: the
// witness ResourceId plus the declared, send-flagged variables of the
// Dataset the entry was written for. It intentionally omits variable
// values — those live entirely in the binary payload section.
type schemaDoc struct {
	XMLName    xml.Name       `xml:"Dataset"`
	ResourceID string         `xml:"resourceId,attr"`
	Name       string         `xml:"name,attr"`
	Variables  []schemaVarXML `xml:"Variable"`
}

type schemaVarXML struct {
	Name    string   `xml:"name,attr"`
	Kind    string   `xml:"kind,attr"`
	Columns []string `xml:"Column,omitempty"`
}
