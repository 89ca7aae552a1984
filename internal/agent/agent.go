package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/qmuntal/stateless"
	"github.com/sashabaranov/go-openai"

	"github.com/comigor/toolhop/internal/config"
	"github.com/comigor/toolhop/internal/history"
	"github.com/comigor/toolhop/internal/llm"
	"github.com/comigor/toolhop/internal/logger"
	"github.com/comigor/toolhop/pkg/tools"
)

const defaultSystemPrompt = `You are a helpful assistant that can recommend movies and report the current weather.
To recommend movies, fetch the user's past reviews, look up the genres of the movies they liked, then find unseen movies in those genres.
If you need information from the user (for example their user id or a city), ask a clarifying question.
When you have the final recommendation, deliver it with the sendResponse tool.`

// Agent runs conversation turns: it replays history, calls the model, executes
// the requested tools and feeds their results back until the model answers or
// a terminal tool is invoked.
type Agent struct {
	llmClient    llm.Client
	store        history.Store
	loader       history.Loader
	registry     *tools.Registry
	cfg          config.LLMConfig
	limits       config.AgentConfig
	systemPrompt string
	log          *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// session serializes turns of one conversation and owns its state machine.
type session struct {
	mu   sync.Mutex
	id   string
	fsm  *stateless.StateMachine
	turn *turn

	// refs counts callers holding or waiting for mu. Guarded by Agent.mu.
	refs int
}

// turn is the working data of a single Process call.
type turn struct {
	input    string
	messages []openai.ChatCompletionMessage
	hops     int

	response openai.ChatCompletionMessage
	batch    openai.ChatCompletionMessage
	results  []openai.ChatCompletionMessage
	terminal bool

	final string
	err   error
}

// New creates an agent. The registry should already hold every tool the
// model may call.
func New(llmClient llm.Client, store history.Store, registry *tools.Registry, cfg config.Config) *Agent {
	prompt := defaultSystemPrompt
	if strings.TrimSpace(cfg.LLM.SystemPrompt) != "" {
		prompt = cfg.LLM.SystemPrompt
	}
	return &Agent{
		llmClient:    llmClient,
		store:        store,
		loader:       history.Loader{Store: store, Limit: cfg.History.MaxEntries},
		registry:     registry,
		cfg:          cfg.LLM,
		limits:       cfg.Agent,
		systemPrompt: prompt,
		log:          logger.For("agent"),
		sessions:     make(map[string]*session),
	}
}

// acquire returns the locked session of a conversation, creating it when no
// caller holds one. Every acquire must be paired with release.
func (a *Agent) acquire(conversationID string) *session {
	a.mu.Lock()
	s, ok := a.sessions[conversationID]
	if !ok {
		s = &session{id: conversationID}
		s.fsm = a.newMachine(s)
		a.sessions[conversationID] = s
	}
	s.refs++
	a.mu.Unlock()

	s.mu.Lock()
	return s
}

// release unlocks s and forgets it once nobody holds or waits for it. Between
// turns the machine is always awaiting input, so an idle session carries no
// state worth keeping.
func (a *Agent) release(s *session) {
	s.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(a.sessions, s.id)
	}
}

// Process runs one user turn and returns the final reply. Turns of the same
// conversation are serialized; different conversations run concurrently.
func (a *Agent) Process(ctx context.Context, conversationID, input string) (string, error) {
	s := a.acquire(conversationID)
	defer a.release(s)

	s.turn = &turn{input: input}
	defer func() { s.turn = nil }()

	a.log.Debug("Processing input", "conversation", conversationID, "input", input)
	if err := s.fsm.FireCtx(ctx, TriggerUserInput); err != nil {
		a.log.Error("State machine failure, resetting", "conversation", conversationID, "error", err)
		s.fsm = a.newMachine(s)
		if s.turn.err != nil {
			return "", s.turn.err
		}
		return "", fmt.Errorf("hop state machine: %w", err)
	}
	if state := s.fsm.MustState(); state != StateAwaitingUserInput {
		s.fsm = a.newMachine(s)
		return "", fmt.Errorf("turn ended in unexpected state %v", state)
	}
	if s.turn.err != nil {
		return "", s.turn.err
	}
	a.log.Info("Turn complete", "conversation", conversationID, "hops", s.turn.hops)
	return s.turn.final, nil
}

// State reports where the state machine of a conversation currently is.
func (a *Agent) State(conversationID string) State {
	s := a.acquire(conversationID)
	defer a.release(s)
	st, _ := s.fsm.MustState().(State)
	return st
}

// History returns the stored entries of a conversation, at most limit of the
// most recent ones when limit is positive.
func (a *Agent) History(ctx context.Context, conversationID string, limit int) ([]history.Entry, error) {
	entries, err := a.store.List(ctx, conversationID, limit)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}
	return entries, nil
}

// Count returns the number of stored entries of a conversation.
func (a *Agent) Count(ctx context.Context, conversationID string) (int, error) {
	n, err := a.store.Count(ctx, conversationID)
	if err != nil {
		return 0, &PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

// Reset deletes the stored history of a conversation and returns how many
// entries were removed. It waits for a running turn of that conversation.
func (a *Agent) Reset(ctx context.Context, conversationID string) (int, error) {
	s := a.acquire(conversationID)
	defer a.release(s)

	n, err := a.store.Clear(ctx, conversationID)
	if err != nil {
		return 0, &PersistenceError{Op: "clear", Err: err}
	}
	return n, nil
}

func (a *Agent) fail(ctx context.Context, s *session, err error) error {
	a.log.Error("Turn failed", "conversation", s.id, "hop", s.turn.hops, "error", err)
	s.turn.err = err
	return s.fsm.FireCtx(ctx, TriggerFailed)
}

func (a *Agent) buildRequest(ctx context.Context, s *session) error {
	t := s.turn
	past, err := a.loader.Load(ctx, s.id)
	if err != nil {
		return a.fail(ctx, s, &PersistenceError{Op: "load", Err: err})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: t.input}
	if _, err := a.store.Append(ctx, s.id, user.Role, user.Content); err != nil {
		return a.fail(ctx, s, &PersistenceError{Op: "append user message", Err: err})
	}

	t.messages = make([]openai.ChatCompletionMessage, 0, len(past)+2)
	t.messages = append(t.messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: a.systemPrompt})
	t.messages = append(t.messages, past...)
	t.messages = append(t.messages, user)
	return s.fsm.FireCtx(ctx, TriggerRequestBuilt)
}

func (a *Agent) callModel(ctx context.Context, s *session) error {
	t := s.turn
	t.hops++

	req := openai.ChatCompletionRequest{
		Model:       a.cfg.Model,
		Messages:    t.messages,
		Temperature: a.cfg.Temperature,
		MaxTokens:   a.cfg.MaxTokens,
	}
	if decls := a.registry.Declarations(); len(decls) > 0 {
		req.Tools = decls
		req.ToolChoice = "auto"
	}

	callCtx := ctx
	if a.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()
	}

	a.log.Debug("Calling model", "conversation", s.id, "hop", t.hops, "messages", len(t.messages))
	resp, err := a.llmClient.CreateChatCompletion(callCtx, req)
	if err != nil {
		return a.fail(ctx, s, &EndpointError{Hop: t.hops, Err: err})
	}
	if len(resp.Choices) == 0 {
		return a.fail(ctx, s, &EndpointError{Hop: t.hops, Err: ErrNoChoices})
	}

	msg := resp.Choices[0].Message
	msg.Role = openai.ChatMessageRoleAssistant
	t.response = msg
	if len(msg.ToolCalls) > 0 {
		return s.fsm.FireCtx(ctx, TriggerModelRequestedTools)
	}
	t.final = msg.Content
	return s.fsm.FireCtx(ctx, TriggerModelReturnedContent)
}

func (a *Agent) appendResults(ctx context.Context, s *session) error {
	t := s.turn
	t.messages = append(t.messages, t.results...)

	callPayload, err := history.EncodeCallBatch(t.batch)
	if err != nil {
		return a.fail(ctx, s, &PersistenceError{Op: "encode tool-call batch", Err: err})
	}
	resultPayload, err := history.EncodeResultBatch(t.results)
	if err != nil {
		return a.fail(ctx, s, &PersistenceError{Op: "encode tool results", Err: err})
	}
	records := []history.Record{
		{Role: openai.ChatMessageRoleAssistant, Payload: callPayload},
		{Role: openai.ChatMessageRoleTool, Payload: resultPayload},
	}
	if _, err := a.store.AppendBatch(ctx, s.id, records); err != nil {
		return a.fail(ctx, s, &PersistenceError{Op: "append tool batch", Err: err})
	}

	if t.terminal {
		return s.fsm.FireCtx(ctx, TriggerTerminalToolInvoked)
	}
	return s.fsm.FireCtx(ctx, TriggerNextHop)
}

func (a *Agent) emitFinal(ctx context.Context, s *session) error {
	t := s.turn
	if t.final != "" {
		if _, err := a.store.Append(ctx, s.id, openai.ChatMessageRoleAssistant, t.final); err != nil {
			return a.fail(ctx, s, &PersistenceError{Op: "append reply", Err: err})
		}
	}
	return s.fsm.FireCtx(ctx, TriggerFinalEmitted)
}
