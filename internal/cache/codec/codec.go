// Package codec reads and writes the two-section on-disk format of a
// Function Response Cache entry: a UTF-8 witness line followed by an
// XML schema section, a "--DATA:\n" sentinel, and a binary payload
// section. The witness line is byte-identical to the ResourceId the
// entry was written for, so a reader can detect a fingerprint
// collision by comparing one line instead of parsing the rest of the
// file.
package codec

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/arturkryukov/dapfncache/internal/dapmodel"
)

// dataSentinel marks the boundary between the schema section and the
// binary payload section.
const dataSentinel = "--DATA:\n"

// ErrCollision is returned by Read when the witness line does not
// match the expected ResourceId: a different resource hashed to the
// same fingerprint and occupies this file.
var ErrCollision = fmt.Errorf("codec: witness line does not match resource id")

// Write serializes ds to w in the on-disk cache format: resourceId as
// the witness line, the XML schema for ds.SendList(), the data
// sentinel, then each send-flagged variable's binary payload in
// declaration order.
func Write(w io.Writer, resourceID string, ds *dapmodel.Dataset) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%s\n", resourceID); err != nil {
		return fmt.Errorf("codec: write witness line: %w", err)
	}

	sendList := ds.SendList()
	doc := schemaDoc{
		ResourceID: resourceID,
		Name:       ds.Name(),
		Variables:  make([]schemaVarXML, 0, len(sendList)),
	}
	for _, v := range sendList {
		sv := schemaVarXML{Name: v.Name(), Kind: string(v.Kind())}
		if seq, ok := v.(*dapmodel.Sequence); ok {
			sv.Columns = seq.Columns
		}
		doc.Variables = append(doc.Variables, sv)
	}

	xmlBytes, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("codec: marshal schema: %w", err)
	}
	if _, err := bw.Write(xmlBytes); err != nil {
		return fmt.Errorf("codec: write schema: %w", err)
	}
	if err := bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("codec: write schema newline: %w", err)
	}

	if _, err := bw.WriteString(dataSentinel); err != nil {
		return fmt.Errorf("codec: write data sentinel: %w", err)
	}

	for _, v := range sendList {
		p, ok := v.(dapmodel.Payload)
		if !ok {
			return fmt.Errorf("codec: variable %q does not implement Payload", v.Name())
		}
		if err := p.WritePayload(bw); err != nil {
			return fmt.Errorf("codec: write payload for %q: %w", v.Name(), err)
		}
	}

	return bw.Flush()
}

// PeekWitness reads only the first line of r and returns it without
// consuming the rest of the reader's underlying data beyond that line
// plus its newline. Used for the O(1) collision check: callers compare
// the result against the ResourceId they expected before doing any
// further work.
func PeekWitness(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("codec: read witness line: %w", err)
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// Read parses a full cache entry from r, verifying the witness line
// against resourceID first. On a witness mismatch it returns
// ErrCollision without attempting to parse the rest of the file. On
// success it returns a freshly constructed Dataset whose variables
// were built by dapmodel.CacheAwareFactory and whose Sequence cursors
// have been reset to zero, ready to be serialized onward unchanged.
func Read(r io.Reader, resourceID string) (*dapmodel.Dataset, error) {
	br := bufio.NewReader(r)

	witness, err := PeekWitness(br)
	if err != nil {
		return nil, err
	}
	if witness != resourceID {
		return nil, ErrCollision
	}

	schemaBytes, err := readUntilSentinel(br)
	if err != nil {
		return nil, fmt.Errorf("codec: read schema section: %w", err)
	}

	var doc schemaDoc
	if err := xml.Unmarshal(schemaBytes, &doc); err != nil {
		return nil, fmt.Errorf("codec: unmarshal schema: %w", err)
	}

	ds := dapmodel.New(doc.Name)
	var factory dapmodel.CacheAwareFactory
	for _, sv := range doc.Variables {
		v, err := factory.NewVariable(dapmodel.Kind(sv.Kind), sv.Name, sv.Columns)
		if err != nil {
			return nil, fmt.Errorf("codec: build variable %q: %w", sv.Name, err)
		}
		v.SetSend(true)
		ds.AddVariable(v)

		p, ok := v.(dapmodel.Payload)
		if !ok {
			return nil, fmt.Errorf("codec: variable %q does not implement Payload", sv.Name)
		}
		if err := p.ReadPayload(br); err != nil {
			return nil, fmt.Errorf("codec: read payload for %q: %w", sv.Name, err)
		}
	}

	ds.MarkAllReadAndSent()
	ds.ResetSequenceCursors()

	return ds, nil
}

// readUntilSentinel consumes and returns everything up to and
// excluding the data sentinel line, leaving br positioned at the start
// of the binary payload section.
func readUntilSentinel(br *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	for {
		line, err := br.ReadString('\n')
		if line == dataSentinel {
			return buf.Bytes(), nil
		}
		buf.WriteString(line)
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("data sentinel not found before EOF")
			}
			return nil, err
		}
	}
}
