package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Func adapts a typed handler into an Executor. Arguments are decoded into T
// through its json tags; a string result is used verbatim, anything else is
// JSON-encoded.
func Func[T any, R any](fn func(ctx context.Context, args T) (R, error)) Executor {
	return func(ctx context.Context, raw map[string]any) (string, error) {
		var args T
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:  &args,
			TagName: "json",
		})
		if err != nil {
			return "", fmt.Errorf("create argument decoder: %w", err)
		}
		if err := decoder.Decode(raw); err != nil {
			return "", fmt.Errorf("decode arguments: %w", err)
		}

		out, err := fn(ctx, args)
		if err != nil {
			return "", err
		}
		return encodeResult(out)
	}
}

func encodeResult(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(b), nil
}
