// Package pkginfo provides the Python package information lookup tool.
package pkginfo

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/corpus"
	"github.com/effective-security/toolagent/tools"
)

// ToolName is the name of the package info tool
const ToolName = "python_package_info"

// Description is given to the model
const Description = "Get information about Python packages. Input should be the name of a Python package."

// Request is the tool input
type Request struct {
	PackageName string `json:"package_name" jsonschema:"description=The name of a Python package"`
}

// Lookup finds packages by name
type Lookup struct {
	names    []string
	packages map[string]string
}

// NewLookup returns the lookup over the packages
func NewLookup(packages []corpus.Package) *Lookup {
	l := &Lookup{
		packages: make(map[string]string, len(packages)),
	}
	for _, p := range packages {
		k := strings.ToLower(p.Name)
		if _, ok := l.packages[k]; !ok {
			l.names = append(l.names, k)
		}
		l.packages[k] = p.Description
	}
	return l
}

// Names returns the known package names
func (l *Lookup) Names() []string {
	return l.names
}

// Run returns the package description
func (l *Lookup) Run(_ context.Context, req *Request) (string, error) {
	name := strings.TrimSpace(req.PackageName)
	if desc, ok := l.packages[strings.ToLower(name)]; ok {
		return desc, nil
	}
	return "", errors.Newf("Information about '%s' is not in my database. Available packages: %s",
		name, strings.Join(l.names, ", "))
}

// New returns the tool with the built-in packages
func New() tools.Tool[Request] {
	return NewWithPackages(corpus.Packages())
}

// NewWithPackages returns the tool with the packages
func NewWithPackages(packages []corpus.Package) tools.Tool[Request] {
	return tools.MustFunc(ToolName, Description, NewLookup(packages).Run)
}
