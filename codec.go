package synchro

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/syssam/synchro/metamodel"
)

// Format is a model file encoding.
type Format string

// Supported model file formats.
const (
	YAML    Format = "yaml"
	JSON    Format = "json"
	MsgPack Format = "msgpack"
)

// FormatOf returns the format implied by a file extension. Unknown
// extensions default to YAML.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON
	case ".msgpack", ".mpk":
		return MsgPack
	default:
		return YAML
	}
}

type document struct {
	Metamodel string        `yaml:"metamodel" json:"metamodel" msgpack:"metamodel"`
	Elements  []*elementDoc `yaml:"elements" json:"elements" msgpack:"elements"`
}

type elementDoc struct {
	ID     string         `yaml:"id" json:"id" msgpack:"id"`
	Class  string         `yaml:"class" json:"class" msgpack:"class"`
	Values map[string]any `yaml:"values,omitempty" json:"values,omitempty" msgpack:"values,omitempty"`
}

// LoadModel reads an in-model bound to role from path.
func LoadModel(path, role string, mm *metamodel.Metamodel) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewModelError("load", role, path, err)
	}
	defer f.Close()
	m, err := DecodeModel(f, FormatOf(path), role, mm)
	if err != nil {
		return nil, NewModelError("load", role, path, err)
	}
	return m, nil
}

// DecodeModel decodes an in-model document.
func DecodeModel(r io.Reader, format Format, role string, mm *metamodel.Metamodel) (*Model, error) {
	var doc document
	switch format {
	case JSON:
		dec := json.NewDecoder(r)
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
	case MsgPack:
		if err := msgpack.NewDecoder(r).Decode(&doc); err != nil {
			return nil, err
		}
	default:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
	if doc.Metamodel != "" && doc.Metamodel != mm.Name {
		return nil, fmt.Errorf("document conforms to %s, role %s expects %s", doc.Metamodel, role, mm.Name)
	}
	m := newInputModel(role, mm)
	for _, d := range doc.Elements {
		if _, err := m.NewElement(d.Class, d.ID); err != nil {
			return nil, err
		}
	}
	for i, d := range doc.Elements {
		if err := m.elements[i].decode(d.Values); err != nil {
			return nil, err
		}
	}
	// Fill in opposite ends the document left out.
	for _, e := range m.elements {
		for _, f := range e.class.AllFeatures() {
			o := f.OppositeFeature()
			if o == nil {
				continue
			}
			for _, t := range flatten(e.get(f), nil) {
				if err := t.(*Element).link(o, e); err != nil {
					return nil, err
				}
			}
		}
	}
	return m, nil
}

func (e *Element) decode(values map[string]any) error {
	for name := range values {
		if _, ok := e.class.Feature(name); !ok {
			return &FeatureError{Class: e.class.QualifiedName(), Feature: name}
		}
	}
	for _, f := range e.class.AllFeatures() {
		v, ok := values[f.Name]
		if !ok || v == nil {
			continue
		}
		var items []any
		if f.Many {
			list, ok := v.([]any)
			if !ok {
				return fmt.Errorf("%s.%s: expected a list, got %T", e, f.Name, v)
			}
			items = list
		} else {
			items = []any{v}
		}
		for _, item := range items {
			if !f.IsReference() {
				cv, err := coerce(f, item)
				if err != nil {
					return err
				}
				if f.Many {
					vs, _ := e.values[f.Name].([]any)
					e.values[f.Name] = append(vs, cv)
				} else {
					e.values[f.Name] = cv
				}
				continue
			}
			id, ok := item.(string)
			if !ok {
				return fmt.Errorf("%s.%s: expected an element id, got %T", e, f.Name, item)
			}
			t, ok := e.model.byID[id]
			if !ok {
				return fmt.Errorf("%s.%s: unknown element %q", e, f.Name, id)
			}
			if _, err := e.checkRef(f, t); err != nil {
				return err
			}
			var err error
			if f.Many {
				err = e.addRef(f, t, false)
			} else {
				err = e.setRef(f, t, false)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeDoc(m *Model) *document {
	doc := &document{Metamodel: m.metamodel.Name, Elements: make([]*elementDoc, 0, len(m.elements))}
	for _, e := range m.elements {
		d := &elementDoc{ID: e.id, Class: e.class.Name}
		for _, f := range e.class.AllFeatures() {
			v, ok := e.values[f.Name]
			if !ok {
				continue
			}
			var out any
			switch x := v.(type) {
			case *Element:
				out = x.id
			case []*Element:
				if len(x) == 0 {
					continue
				}
				ids := make([]string, len(x))
				for i, t := range x {
					ids[i] = t.id
				}
				out = ids
			case []any:
				if len(x) == 0 {
					continue
				}
				out = x
			default:
				out = x
			}
			if d.Values == nil {
				d.Values = make(map[string]any)
			}
			d.Values[f.Name] = out
		}
		doc.Elements = append(doc.Elements, d)
	}
	return doc
}

// EncodeModel writes m in the given format. Map keys are sorted so equal
// models encode to identical bytes.
func EncodeModel(w io.Writer, format Format, m *Model) error {
	doc := encodeDoc(m)
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case MsgPack:
		enc := msgpack.NewEncoder(w)
		enc.SetSortMapKeys(true)
		return enc.Encode(doc)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
}

// stageModel encodes m into a temporary file next to path and returns its name.
func stageModel(path string, m *Model) (string, error) {
	var buf bytes.Buffer
	if err := EncodeModel(&buf, FormatOf(path), m); err != nil {
		return "", err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// rename is replaced in tests to make a move fail.
var rename = os.Rename

// publishModels moves each staged file onto paths[i]. A file already at a
// path is kept aside until every move succeeded and is put back when a later
// move fails. It returns the index of the failing path.
func publishModels(staged, paths []string) (int, error) {
	type moved struct{ path, backup string }
	var done []moved
	undo := func() {
		for i := len(done) - 1; i >= 0; i-- {
			if done[i].backup == "" {
				os.Remove(done[i].path)
			} else {
				rename(done[i].backup, done[i].path)
			}
		}
	}
	for i, tmp := range staged {
		m := moved{path: paths[i]}
		if _, err := os.Lstat(m.path); err == nil {
			m.backup = tmp + ".orig"
			if err := rename(m.path, m.backup); err != nil {
				undo()
				return i, err
			}
		}
		if err := rename(tmp, m.path); err != nil {
			if m.backup != "" {
				rename(m.backup, m.path)
			}
			undo()
			return i, err
		}
		done = append(done, m)
	}
	for _, m := range done {
		if m.backup != "" {
			os.Remove(m.backup)
		}
	}
	return -1, nil
}

// SaveModel writes m to path atomically.
func SaveModel(path string, m *Model) error {
	tmp, err := stageModel(path, m)
	if err != nil {
		return NewModelError("save", m.role, path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return NewModelError("save", m.role, path, err)
	}
	return nil
}
