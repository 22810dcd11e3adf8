// Package openapi loads and validates the daemon's embedded API
// document at startup. It does not generate server or client code:
// the document exists as a contract that boot fails loudly against if
// it is ever hand-edited into something inconsistent. Tests check that
// it parses and declares the main paths; they do not compare it with
// the router's routes.
package openapi

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed doc.yaml
var docYAML []byte

// Load parses and validates the embedded OpenAPI document, returning
// an error that should be treated as fatal at startup.
func Load() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(docYAML)
	if err != nil {
		return nil, fmt.Errorf("openapi: parse embedded document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("openapi: embedded document is invalid: %w", err)
	}
	return doc, nil
}
