package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// Simple creates a handler for jobs producing a single result: it emits
// Start, runs fn, emits the returned value as Output and then End.
func Simple(desc Description, fn func(ctx context.Context, argument any, jc *Context) (any, error)) *Handler {
	return NewHandler(desc, func(ctx context.Context, argument any, jc *Context) error {
		if err := jc.Start(ctx); err != nil {
			return err
		}
		out, err := fn(ctx, argument, jc)
		if err != nil {
			return err
		}
		if err := jc.Output(ctx, out); err != nil {
			return err
		}
		return jc.End(ctx)
	})
}

// Typed is like Simple but decodes the argument into A before calling fn.
func Typed[A, O any](desc Description, fn func(ctx context.Context, argument A, jc *Context) (O, error)) *Handler {
	return Simple(desc, func(ctx context.Context, argument any, jc *Context) (any, error) {
		var a A
		if err := Decode(argument, &a); err != nil {
			return nil, fmt.Errorf("decode argument for job %q: %w", desc.Name, err)
		}
		return fn(ctx, a, jc)
	})
}

// Decode converts a JSON-model value (as produced by schema validation)
// into out, which must be a pointer.
func Decode(value, out any) error {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
