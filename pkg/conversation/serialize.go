package conversation

import (
	"encoding/json"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarshalStore serializes the committed node set as JSON, in insertion
// order. This is the payload handed to the persistence provider after each
// accepted mutation.
func MarshalStore(s *Store) ([]byte, error) {
	return json.Marshal(s.Export())
}

// UnmarshalStore rebuilds a store from a MarshalStore payload.
func UnmarshalStore(data []byte) (*Store, error) {
	var nodes []*Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, err
	}
	return FromNodes(nodes)
}

// SaveToFile writes the node set to a JSON file.
func SaveToFile(s *Store, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(s.Export())
}

// LoadFromFile reads a node set from a JSON or YAML file, keyed on the file
// extension.
func LoadFromFile(filename string) (*Store, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	var nodes []*Node
	if strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml") {
		err = yaml.NewDecoder(f).Decode(&nodes)
	} else {
		err = json.NewDecoder(f).Decode(&nodes)
	}
	if err != nil {
		return nil, err
	}

	return FromNodes(nodes)
}
