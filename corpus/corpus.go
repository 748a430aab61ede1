// Package corpus provides the seed documents of the knowledge base
// and the Python package descriptions.
package corpus

import (
	_ "embed"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/encoding"
	"gopkg.in/yaml.v3"
)

//go:embed documents.yaml
var documentsYAML []byte

//go:embed packages.yaml
var packagesYAML []byte

// Document is a seed document of the knowledge base
type Document struct {
	ID      string `json:"id" yaml:"id" toml:"id"`
	Title   string `json:"title" yaml:"title" toml:"title" validate:"required"`
	Content string `json:"content" yaml:"content" toml:"content" validate:"required"`
}

// Package describes a Python package
type Package struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// DocumentsFile is the format of the documents file
type DocumentsFile struct {
	Documents []Document `json:"documents" yaml:"documents" toml:"documents" validate:"dive"`
}

type packagesFile struct {
	Packages []Package `yaml:"packages"`
}

// Documents returns the built-in seed documents
func Documents() []Document {
	var f DocumentsFile
	if err := yaml.Unmarshal(documentsYAML, &f); err != nil {
		panic(errors.Wrap(err, "invalid embedded documents"))
	}
	return f.Documents
}

// Packages returns the built-in Python packages in the declaration order
func Packages() []Package {
	var f packagesFile
	if err := yaml.Unmarshal(packagesYAML, &f); err != nil {
		panic(errors.Wrap(err, "invalid embedded packages"))
	}
	return f.Packages
}

// LoadDocuments loads the documents from a JSON, YAML or TOML file.
// Documents without ID are assigned "doc-<n>".
func LoadDocuments(path string) ([]Document, error) {
	mode, err := encoding.ModeFromFile(path)
	if err != nil {
		return nil, err
	}
	if mode == encoding.ModePlainText {
		return nil, errors.Newf("unsupported documents file: %s", path)
	}

	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	parser, err := encoding.NewTypedOutputParser[DocumentsFile](mode)
	if err != nil {
		return nil, err
	}
	f, err := parser.WithValidation(true).Parse(string(bs))
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to load documents from %s", path)
	}
	if len(f.Documents) == 0 {
		return nil, errors.Newf("no documents in %s", path)
	}
	for i := range f.Documents {
		if f.Documents[i].ID == "" {
			f.Documents[i].ID = "doc-" + strconv.Itoa(i+1)
		}
	}
	return f.Documents, nil
}
