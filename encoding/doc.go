// Package encoding provides the output formats of the agent results (text, JSON, YAML, TOML),
// decoding of documents by file extension, and lenient parsing of model-emitted JSON into typed values.
package encoding
