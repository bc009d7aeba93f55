// Package schema streams a restbuilder schema document into structural events.
//
// The reader is a forward-only cursor: it never materialises the document as a
// tree. Each element produces an EventEnter, one EventAttr per attribute in
// document order, any EventText and nested events, and finally an EventExit.
package schema

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// EventKind identifies the kind of a structural event.
type EventKind uint8

const (
	EventEnter EventKind = iota + 1
	EventAttr
	EventText
	EventExit
)

func (k EventKind) String() string {
	switch k {
	case EventEnter:
		return "enter"
	case EventAttr:
		return "attr"
	case EventText:
		return "text"
	case EventExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Pos is a 1-based line/column position in the input.
type Pos struct {
	Line   int
	Column int
}

// Event is one structural event. Name is the element name for enter/exit
// events and the attribute name for attribute events. Value holds attribute
// values and text.
type Event struct {
	Kind  EventKind
	Name  string
	Value string
	Pos   Pos
}

// Reader produces Events from an XML document.
type Reader struct {
	dec      *xml.Decoder
	pending  []Event
	depth    int
	seenRoot bool
	text     strings.Builder
	textPos  Pos
	done     bool
}

// NewReader returns a reader positioned at the start of r.
func NewReader(r io.Reader) *Reader {
	rd := &Reader{}
	rd.Reset(r)
	return rd
}

// NewBytesReader is a convenience wrapper around NewReader.
func NewBytesReader(data []byte) *Reader {
	return NewReader(bytes.NewReader(data))
}

// Reset discards all state and restarts the cursor at the beginning of r.
func (r *Reader) Reset(in io.Reader) {
	dec := xml.NewDecoder(in)
	dec.Strict = true
	r.dec = dec
	r.pending = r.pending[:0]
	r.depth = 0
	r.seenRoot = false
	r.text.Reset()
	r.done = false
}

// Next returns the next event, or io.EOF once the root element has been closed
// and the input is exhausted.
func (r *Reader) Next() (Event, error) {
	for len(r.pending) == 0 {
		if r.done {
			return Event{}, io.EOF
		}
		if err := r.fill(); err != nil {
			return Event{}, err
		}
	}
	ev := r.pending[0]
	r.pending = r.pending[1:]
	return ev, nil
}

func (r *Reader) pos() Pos {
	line, col := r.dec.InputPos()
	return Pos{Line: line, Column: col}
}

func (r *Reader) fill() error {
	pos := r.pos()
	tok, err := r.dec.Token()
	if errors.Is(err, io.EOF) {
		if r.depth > 0 || !r.seenRoot {
			msg := "unexpected end of document"
			if !r.seenRoot {
				msg = "document has no root element"
			}
			return &SyntaxError{Line: pos.Line, Column: pos.Column, Message: msg}
		}
		r.done = true
		return nil
	}
	if err != nil {
		return wrapSyntax(err, pos)
	}

	switch t := tok.(type) {
	case xml.StartElement:
		if r.depth == 0 && r.seenRoot {
			return &SyntaxError{Line: pos.Line, Column: pos.Column, Message: "multiple root elements"}
		}
		r.flushText()
		r.depth++
		r.seenRoot = true
		r.pending = append(r.pending, Event{Kind: EventEnter, Name: t.Name.Local, Pos: pos})
		for _, a := range t.Attr {
			if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
				continue
			}
			r.pending = append(r.pending, Event{Kind: EventAttr, Name: a.Name.Local, Value: a.Value, Pos: pos})
		}
	case xml.EndElement:
		r.flushText()
		r.depth--
		r.pending = append(r.pending, Event{Kind: EventExit, Name: t.Name.Local, Pos: pos})
	case xml.CharData:
		if r.depth == 0 {
			if len(bytes.TrimSpace(t)) != 0 {
				return &SyntaxError{Line: pos.Line, Column: pos.Column, Message: "text outside of root element"}
			}
			return nil
		}
		if r.text.Len() == 0 {
			r.textPos = pos
		}
		r.text.Write(t)
	case xml.Comment, xml.ProcInst, xml.Directive:
		// skipped
	}
	return nil
}

// flushText emits buffered character data as a single text event. Runs made of
// whitespace only are layout and are dropped.
func (r *Reader) flushText() {
	if r.text.Len() == 0 {
		return
	}
	s := r.text.String()
	r.text.Reset()
	if strings.TrimSpace(s) == "" {
		return
	}
	r.pending = append(r.pending, Event{Kind: EventText, Value: s, Pos: r.textPos})
}

// ReadAll drains r into a slice. It is meant for tests and small documents.
func ReadAll(r *Reader) ([]Event, error) {
	var out []Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}
