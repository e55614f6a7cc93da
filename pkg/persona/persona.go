// Package persona loads assistant definitions from YAML and renders their
// instruction templates. A persona bundles the model variant, the sampling
// settings and the system instructions for one assistant character.
package persona

import (
	"bytes"
	"io"
	"os"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/figaro/pkg/providers"
)

type Persona struct {
	Name         string             `yaml:"name"`
	Description  string             `yaml:"description,omitempty"`
	Variant      string             `yaml:"variant"`
	Instructions string             `yaml:"instructions"`
	Sampling     providers.Settings `yaml:"sampling,omitempty"`
}

func Load(r io.Reader) (*Persona, error) {
	var ret Persona
	decoder := yaml.NewDecoder(r)
	err := decoder.Decode(&ret)
	if err != nil {
		return nil, errors.Wrap(err, "could not decode persona")
	}

	if ret.Name == "" {
		return nil, errors.New("persona has no name")
	}
	if ret.Variant == "" {
		return nil, errors.New("persona has no variant")
	}

	return &ret, nil
}

func LoadFile(path string) (*Persona, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open persona file %s", path)
	}
	defer func() {
		_ = f.Close()
	}()

	return Load(f)
}

// Render executes the instruction template with the given variables. Missing
// variables are an error so a typo in a persona file fails loudly instead of
// producing silent empty instructions.
func (p *Persona) Render(vars map[string]interface{}) (string, error) {
	t, err := template.New(p.Name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(p.Instructions)
	if err != nil {
		return "", errors.Wrapf(err, "could not parse instructions for persona %s", p.Name)
	}

	var buf bytes.Buffer
	err = t.Execute(&buf, vars)
	if err != nil {
		return "", errors.Wrapf(err, "could not render instructions for persona %s", p.Name)
	}

	return buf.String(), nil
}
