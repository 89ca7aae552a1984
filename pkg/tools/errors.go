package tools

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by Dispatch for names that are not registered.
var ErrUnknownTool = errors.New("unknown tool")

// InvalidArgumentsError reports arguments that do not satisfy a tool's schema.
type InvalidArgumentsError struct {
	Tool   string
	Reason string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, e.Reason)
}

// ErrorContent renders an error as tool message content so the model can react to it.
func ErrorContent(err error) string {
	b, merr := json.Marshal(map[string]string{"error": err.Error()})
	if merr != nil {
		return "Error: " + err.Error()
	}
	return string(b)
}
