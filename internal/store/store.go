// Package store defines the document store abstraction the planning core
// runs against, plus the local adapters.
//
// Keys are relative paths within a project-scoped namespace, e.g.
// "project.json", "epics/E1-auth/prd.md", ".lock". The store does not know
// anything about the entities it holds; structured documents are validated
// against their declared schema on read, so loosely-typed data never reaches
// the validators.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	perrors "github.com/p-blackswan/plan-agent/internal/errors"
)

// Store is the document store consumed by the planning core. Implementations
// must return perrors.ErrNotFound (wrapped) from ReadStructured and ReadText
// when the key is absent.
type Store interface {
	ReadStructured(ctx context.Context, key string, out any) error
	WriteStructured(ctx context.Context, key string, v any) error
	ReadText(ctx context.Context, key string) (string, error)
	WriteText(ctx context.Context, key, content string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	ListDirectories(ctx context.Context, prefix string) ([]string, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode unmarshals a structured document and runs schema validation.
// A schema mismatch is fatal for the read and is never auto-corrected.
func Decode(key string, data []byte, out any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s: %v: %w", key, err, perrors.ErrValidation)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("validating %s: %v: %w", key, err, perrors.ErrValidation)
	}
	return nil
}

// Encode marshals a structured document for storage.
func Encode(key string, v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", key, err)
	}
	return append(data, '\n'), nil
}
