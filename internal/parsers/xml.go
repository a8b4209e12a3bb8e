package parsers

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Benny93/fedgraph/internal/records"
)

type element struct {
	name     string
	rec      records.Record
	text     strings.Builder
	children bool
}

// DecodeXML decodes an XML document into a record tree keyed by the root
// element's name.
//
// Attributes are grouped under records.AttributesKey. A repeated child
// element becomes a sequence. An element with neither attributes nor
// children becomes its trimmed text; otherwise non-blank text is kept under
// records.TextKey.
func DecodeXML(r io.Reader) (records.Record, error) {
	dec := xml.NewDecoder(r)
	var (
		stack []*element
		root  records.Record
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedStore, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, rec: records.Record{}}
			if attrs := attributes(t.Attr); len(attrs) > 0 {
				el.rec[records.AttributesKey] = attrs
			}
			if len(stack) > 0 {
				stack[len(stack)-1].children = true
			}
			stack = append(stack, el)

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unexpected </%s>", ErrMalformedStore, t.Name.Local)
			}
			el := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			value := el.value()
			if len(stack) == 0 {
				root = records.Record{el.name: value}
				continue
			}
			appendChild(stack[len(stack)-1].rec, el.name, value)
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: unclosed <%s>", ErrMalformedStore, stack[len(stack)-1].name)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedStore)
	}
	return root, nil
}

func (el *element) value() any {
	text := strings.TrimSpace(el.text.String())
	if !el.children && !el.rec.Has(records.AttributesKey) {
		return text
	}
	if text != "" {
		el.rec[records.TextKey] = text
	}
	return el.rec
}

func attributes(attrs []xml.Attr) records.Record {
	out := records.Record{}
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		out[a.Name.Local] = a.Value
	}
	return out
}

func appendChild(parent records.Record, name string, value any) {
	existing, ok := parent[name]
	if !ok {
		parent[name] = value
		return
	}
	if list, isList := existing.([]any); isList {
		parent[name] = append(list, value)
		return
	}
	parent[name] = []any{existing, value}
}
