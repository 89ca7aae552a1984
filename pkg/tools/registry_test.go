package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Text  string `json:"text"`
	Times *int   `json:"times,omitempty"`
}

func echoSpec() Spec {
	return Spec{
		Name:        "echo",
		Description: "Echo text",
		Schema:      MustSchemaFor[echoArgs](),
		Exec: Func(func(_ context.Context, a echoArgs) (map[string]any, error) {
			n := 1
			if a.Times != nil {
				n = *a.Times
			}
			return map[string]any{"text": a.Text, "times": n}, nil
		}),
	}
}

func TestRegistry_RegisterRejectsDuplicatesAndEmpty(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec()))
	require.Error(t, r.Register(echoSpec()))
	require.Error(t, r.Register(Spec{Exec: echoSpec().Exec}))
	require.Error(t, r.Register(Spec{Name: "noexec"}))
}

func TestRegistry_DispatchUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), "nope", `{}`)
	require.ErrorIs(t, err, ErrUnknownTool)
}

func TestRegistry_DispatchInvalidArguments(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec()))

	cases := map[string]string{
		"missing required": `{"times": 2}`,
		"wrong type":       `{"text": 12}`,
		"not json":         `{"text": `,
		"not an object":    `["text"]`,
		"non integer":      `{"text":"x","times":1.5}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Dispatch(context.Background(), "echo", raw)
			var invalid *InvalidArgumentsError
			require.ErrorAs(t, err, &invalid)
			require.Equal(t, "echo", invalid.Tool)
		})
	}
}

func TestRegistry_DispatchSuccess(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec()))

	res, err := r.Dispatch(context.Background(), "echo", `{"text":"hi","times":3}`)
	require.NoError(t, err)
	require.False(t, res.Failed)
	require.False(t, res.Terminal)
	require.JSONEq(t, `{"text":"hi","times":3}`, res.Content)

	res, err = r.Dispatch(context.Background(), "echo", `{"text":"hi"}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"text":"hi","times":1}`, res.Content)
}

func TestRegistry_ExecutorFailureBecomesContent(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Spec{
		Name: "boom",
		Exec: func(context.Context, map[string]any) (string, error) { return "", errors.New("city not found") },
	}))
	require.NoError(t, r.Register(Spec{
		Name: "panic",
		Exec: func(context.Context, map[string]any) (string, error) { panic("bad state") },
	}))

	res, err := r.Dispatch(context.Background(), "boom", "")
	require.NoError(t, err)
	require.True(t, res.Failed)
	require.JSONEq(t, `{"error":"city not found"}`, res.Content)

	res, err = r.Dispatch(context.Background(), "panic", "{}")
	require.NoError(t, err)
	require.True(t, res.Failed)
	require.Contains(t, res.Content, "bad state")
}

func TestRegistry_TimeoutBoundsExecutor(t *testing.T) {
	r := NewRegistry()
	r.SetTimeout(20 * time.Millisecond)
	require.NoError(t, r.Register(Spec{
		Name: "slow",
		Exec: func(ctx context.Context, _ map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}))

	res, err := r.Dispatch(context.Background(), "slow", "{}")
	require.NoError(t, err)
	require.True(t, res.Failed)
	require.Contains(t, res.Content, "deadline exceeded")
}

func TestRegistry_TerminalForwardsVerbatim(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, Deps{}, SendResponse))
	require.True(t, r.IsTerminal("sendResponse"))
	require.False(t, r.IsTerminal("echo"))

	res, err := r.Dispatch(context.Background(), "sendResponse", `{"response":"Watch \"Arrival\" tonight."}`)
	require.NoError(t, err)
	require.True(t, res.Terminal)
	require.Equal(t, `Watch "Arrival" tonight.`, res.Content)
}

func TestRegistry_DeclarationsMatchSchema(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoSpec()))
	require.NoError(t, RegisterBuiltins(r, Deps{Catalog: DefaultCatalog()}, GetMovies))

	decls := r.Declarations()
	require.Len(t, decls, 2)
	require.Equal(t, "echo", decls[0].Function.Name)
	require.Equal(t, "getMovies", decls[1].Function.Name)

	b, err := json.Marshal(decls[1].Function.Parameters)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"type":"object",
		"properties":{
			"genres":{"type":"array","items":{"type":"string"},"description":"Target genres to match"},
			"pastIds":{"type":"array","items":{"type":"integer"},"description":"Movie ids the user has already watched to exclude"}
		},
		"required":["genres","pastIds"],
		"additionalProperties":false
	}`, string(b))
}

func TestRegistry_DefaultSchemaIsEmptyObject(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Spec{
		Name: "ping",
		Exec: func(context.Context, map[string]any) (string, error) { return "pong", nil },
	}))

	b, err := json.Marshal(r.Declarations()[0].Function.Parameters)
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"object"}`, string(b))

	res, err := r.Dispatch(context.Background(), "ping", `{"anything":1}`)
	require.NoError(t, err)
	require.Equal(t, "pong", res.Content)
}
