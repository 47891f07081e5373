// Package document stores typed records as markdown files with YAML front
// matter inside a versioned repository.
package document

import (
	"bytes"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/raido/internal/apperr"
)

const delim = "---"

// Record is anything storable as front matter plus a body. The id is derived
// from the file name and never serialized; the body holds the description.
type Record interface {
	ID() string
	SetID(id string)
	Body() string
	SetBody(body string)
}

// Validator is implemented by records that check their own fields after decoding.
type Validator interface {
	Validate() error
}

// Encode renders rec as "---\n<yaml>\n---\n\n<body>".
func Encode(rec Record) ([]byte, error) {
	var fm bytes.Buffer
	enc := yaml.NewEncoder(&fm)
	enc.SetIndent(2)
	if err := enc.Encode(rec); err != nil {
		return nil, apperr.Wrap(apperr.ErrContract, "document: encode", err)
	}
	if err := enc.Close(); err != nil {
		return nil, apperr.Wrap(apperr.ErrContract, "document: encode", err)
	}

	var out bytes.Buffer
	out.WriteString(delim + "\n")
	out.Write(fm.Bytes())
	out.WriteString("\n" + delim + "\n\n")
	out.WriteString(rec.Body())
	return out.Bytes(), nil
}

// Split separates the YAML front matter block from the body. The block must
// open the file and be closed by a line holding only "---".
func Split(data []byte) (front []byte, body string, err error) {
	const op = "document: split"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, "", apperr.New(apperr.ErrDeserialization, op, "missing front matter")
	}

	rest := trimmed[len(delim):]
	offset := 0
	for {
		idx := bytes.Index(rest[offset:], []byte("\n"+delim))
		if idx < 0 {
			return nil, "", apperr.New(apperr.ErrDeserialization, op, "unterminated front matter")
		}
		end := offset + idx + 1 + len(delim)
		after := rest[end:]
		if len(after) == 0 || after[0] == '\n' || bytes.HasPrefix(after, []byte("\r\n")) {
			front = rest[:offset+idx]
			body = strings.TrimLeft(string(after), "\n\r")
			return front, body, nil
		}
		offset = end
	}
}

// IDFromPath returns the file stem of a slash-separated path.
func IDFromPath(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// Decode parses data into a new T. The id comes from p and a non-empty body
// becomes the description.
func Decode[T any, PT interface {
	*T
	Record
}](data []byte, p string) (PT, error) {
	const op = "document: decode"
	front, body, err := Split(data)
	if err != nil {
		return nil, apperr.WrapPath(apperr.ErrDeserialization, op, p, err)
	}

	rec := PT(new(T))
	if err := yaml.Unmarshal(front, rec); err != nil {
		return nil, apperr.WrapPath(apperr.ErrDeserialization, op, p, err)
	}
	rec.SetID(IDFromPath(p))
	if body != "" {
		rec.SetBody(body)
	}
	if v, ok := any(rec).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, apperr.WrapPath(apperr.ErrDeserialization, op, p, err)
		}
	}
	return rec, nil
}
