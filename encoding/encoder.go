package encoding

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	jsonenc "github.com/effective-security/toolagent/encoding/json"
	plainenc "github.com/effective-security/toolagent/encoding/plain"
	tomlenc "github.com/effective-security/toolagent/encoding/toml"
	yamlenc "github.com/effective-security/toolagent/encoding/yaml"
)

// Encoder marshals values for output and decodes documents
type Encoder interface {
	Marshal(v any) ([]byte, error)
	Unmarshal([]byte, any) error
}

type Validator interface {
	Validate(any) error
}

type Mode = string

const (
	ModeJSON      Mode = "json"
	ModeYAML      Mode = "yaml"
	ModeTOML      Mode = "toml"
	ModePlainText Mode = "plain_text"
)

// ModeDefault is the default mode for the encoder.
// Allow to override in apps
var ModeDefault = ModePlainText

// ParseMode returns the Mode for the name, `text` is an alias of plain_text
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ModeDefault, nil
	case "text", "plain", ModePlainText:
		return ModePlainText, nil
	case ModeJSON:
		return ModeJSON, nil
	case ModeYAML, "yml":
		return ModeYAML, nil
	case ModeTOML:
		return ModeTOML, nil
	}
	return "", errors.Newf("unsupported format: %q", s)
}

// ModeFromFile returns the Mode by the file extension
func ModeFromFile(path string) (Mode, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ModeJSON, nil
	case ".yaml", ".yml":
		return ModeYAML, nil
	case ".toml":
		return ModeTOML, nil
	case ".txt", ".md":
		return ModePlainText, nil
	}
	return "", errors.Newf("unsupported file extension: %q", path)
}

// NewEncoder returns the encoder for the mode
func NewEncoder(mode Mode) (Encoder, error) {
	switch mode {
	case ModeJSON:
		return jsonenc.NewEncoder(), nil
	case ModeYAML:
		return yamlenc.NewEncoder(), nil
	case ModeTOML:
		return tomlenc.NewEncoder(), nil
	case ModePlainText:
		return plainenc.NewEncoder(), nil
	}
	return nil, errors.Newf("no predefined encoder for mode %q", mode)
}

var (
	_ Encoder = (*jsonenc.Encoder)(nil)
	_ Encoder = (*plainenc.Encoder)(nil)
	_ Encoder = (*tomlenc.Encoder)(nil)
	_ Encoder = (*yamlenc.Encoder)(nil)

	_ Validator = (*jsonenc.Encoder)(nil)
	_ Validator = (*tomlenc.Encoder)(nil)
	_ Validator = (*yamlenc.Encoder)(nil)
)
