package metamodel

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and initializes a metamodel from a YAML (or JSON) file.
func Load(path string) (*Metamodel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metamodel: read %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("metamodel: %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and initializes a metamodel document. Unknown keys are rejected.
func Parse(data []byte) (*Metamodel, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	m := &Metamodel{}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := m.Init(); err != nil {
		return nil, err
	}
	return m, nil
}
