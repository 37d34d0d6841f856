// Package schema compiles JSON-schema descriptors into validators. A
// validator normalises a candidate value to its JSON model, fills in schema
// defaults and reports the outcome as a Result rather than an error, so a
// failed validation is data and only genuinely exceptional conditions (a
// cancelled context) are returned as errors.
//
// Descriptors may be nil or true (accept anything), false (reject
// everything), a JSON document as string, []byte or json.RawMessage, or any
// value that marshals to a JSON schema such as map[string]any.
package schema

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is an opaque schema descriptor.
type Schema = any

// Result is the outcome of validating one value.
type Result struct {
	// Success reports whether the value conforms to the schema.
	Success bool

	// Data is the normalised value with defaults applied. It is only
	// meaningful when Success is true.
	Data any

	// Errors lists human-readable validation failures.
	Errors []string
}

// Validator validates a value against a compiled schema.
type Validator func(ctx context.Context, value any) (Result, error)

// Registry compiles descriptors and caches the compiled validators by the
// canonical JSON text of the descriptor. It is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	cache map[string]Validator
}

// NewRegistry creates an empty schema registry.
func NewRegistry() *Registry {
	return &Registry{cache: make(map[string]Validator)}
}

// IsTrivial reports whether descriptor accepts every value.
func IsTrivial(descriptor Schema) bool {
	switch d := descriptor.(type) {
	case nil:
		return true
	case bool:
		return d
	}
	return false
}

// Compile turns a descriptor into a Validator.
func (r *Registry) Compile(descriptor Schema) (Validator, error) {
	switch d := descriptor.(type) {
	case nil:
		return acceptAll, nil
	case bool:
		if d {
			return acceptAll, nil
		}
		return rejectAll, nil
	}

	raw, err := descriptorJSON(descriptor)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	key := hex.EncodeToString(sum[:])

	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.cache[key]; ok {
		return v, nil
	}

	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("schema: decode descriptor: %w", err)
	}
	if b, ok := tree.(bool); ok {
		if b {
			r.cache[key] = acceptAll
		} else {
			r.cache[key] = rejectAll
		}
		return r.cache[key], nil
	}

	url := "mem:///architect/" + key + ".json"
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("schema: add descriptor: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema: compile descriptor: %w", err)
	}

	v := newValidator(compiled, tree)
	r.cache[key] = v
	return v, nil
}

// Validate is a convenience that compiles descriptor and validates value.
func (r *Registry) Validate(ctx context.Context, descriptor Schema, value any) (Result, error) {
	v, err := r.Compile(descriptor)
	if err != nil {
		return Result{}, err
	}
	return v(ctx, value)
}

func newValidator(compiled *jsonschema.Schema, tree any) Validator {
	return func(ctx context.Context, value any) (Result, error) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		data, err := Normalize(value)
		if err != nil {
			return Result{Errors: []string{err.Error()}}, nil
		}
		data = applyDefaults(tree, data)

		if err := compiled.Validate(data); err != nil {
			var verr *jsonschema.ValidationError
			if errors.As(err, &verr) {
				return Result{Errors: flatten(verr)}, nil
			}
			return Result{Errors: []string{err.Error()}}, nil
		}
		return Result{Success: true, Data: data}, nil
	}
}

func acceptAll(ctx context.Context, value any) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{Success: true, Data: value}, nil
}

func rejectAll(ctx context.Context, _ any) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{Errors: []string{"schema rejects all values"}}, nil
}

// Normalize converts value into its JSON data model (map[string]any,
// []any, float64, string, bool, nil) by round-tripping it through
// encoding/json. The result never aliases value.
func Normalize(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("schema: value is not JSON-serializable: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("schema: normalize value: %w", err)
	}
	return out, nil
}

func descriptorJSON(descriptor Schema) ([]byte, error) {
	switch d := descriptor.(type) {
	case json.RawMessage:
		return d, nil
	case []byte:
		return d, nil
	case string:
		return []byte(d), nil
	}
	raw, err := json.Marshal(descriptor)
	if err != nil {
		return nil, fmt.Errorf("schema: encode descriptor: %w", err)
	}
	return raw, nil
}

func flatten(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{fmt.Sprintf("#%s: %s", verr.InstanceLocation, verr.Message)}
	}
	var out []string
	for _, c := range verr.Causes {
		out = append(out, flatten(c)...)
	}
	return out
}
