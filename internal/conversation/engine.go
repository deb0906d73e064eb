package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/jewelry-concierge/internal/catalog"
	"github.com/wolfman30/jewelry-concierge/internal/observability/metrics"
	"github.com/wolfman30/jewelry-concierge/internal/preferences"
	"github.com/wolfman30/jewelry-concierge/pkg/logging"
)

const (
	defaultTurnTimeout   = 45 * time.Second
	defaultMaxMessageLen = 1000
	defaultRAGTopK       = 4
	saveTimeout          = 5 * time.Second

	// withheldMessage replaces blocked input in the stored transcript.
	withheldMessage = "[message withheld]"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// ValidSessionID reports whether a client-supplied session id is usable.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// ValidateMessage trims msg and rejects it when empty or longer than maxLen
// runes. It runs before any external call.
func ValidateMessage(msg string, maxLen int) (string, error) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", fmt.Errorf("%w: message is empty", ErrInvalidMessage)
	}
	if maxLen > 0 && utf8.RuneCountInString(msg) > maxLen {
		return "", fmt.Errorf("%w: message exceeds %d characters", ErrInvalidMessage, maxLen)
	}
	return msg, nil
}

// Classifier labels an utterance; IntentClassifier implements it.
type Classifier interface {
	Classify(ctx context.Context, history []ChatMessage, utterance string) (Intent, error)
}

// Extractor updates the preference record; PreferenceExtractor implements it.
type Extractor interface {
	Extract(ctx context.Context, history []ChatMessage, utterance string, rec preferences.Record) (ExtractionResult, error)
}

// EngineDeps are the collaborators of an Engine. Knowledge and Metrics are optional.
type EngineDeps struct {
	Sessions   SessionStore
	Locker     SessionLocker
	Classifier Classifier
	Extractor  Extractor
	Matcher    InventoryMatcher
	Composer   *ResponseComposer
	LLM        LLMClient
	Products   catalog.Repository
	Knowledge  RAGRetriever
	Metrics    *metrics.ChatMetrics
	Logger     *logging.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithTurnTimeout bounds the whole pipeline including the reply stream.
func WithTurnTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.turnTimeout = d
		}
	}
}

// WithMaxMessageLength sets the longest accepted utterance in characters.
func WithMaxMessageLength(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxLen = n
		}
	}
}

// WithRAGTopK sets how many knowledge snippets are retrieved per turn.
func WithRAGTopK(k int) EngineOption {
	return func(e *Engine) {
		if k > 0 {
			e.ragTopK = k
		}
	}
}

// Engine runs one customer turn end to end.
type Engine struct {
	sessions   SessionStore
	locker     SessionLocker
	classifier Classifier
	extractor  Extractor
	matcher    InventoryMatcher
	rules      *catalog.RuleMatcher
	composer   *ResponseComposer
	llm        LLMClient
	products   catalog.Repository
	knowledge  RAGRetriever
	metrics    *metrics.ChatMetrics
	logger     *logging.Logger

	turnTimeout time.Duration
	maxLen      int
	ragTopK     int
}

func NewEngine(deps EngineDeps, opts ...EngineOption) *Engine {
	switch {
	case deps.Sessions == nil:
		panic("conversation: engine requires a session store")
	case deps.Locker == nil:
		panic("conversation: engine requires a session locker")
	case deps.Classifier == nil:
		panic("conversation: engine requires an intent classifier")
	case deps.Extractor == nil:
		panic("conversation: engine requires a preference extractor")
	case deps.Composer == nil:
		panic("conversation: engine requires a response composer")
	case deps.LLM == nil:
		panic("conversation: engine requires an llm client")
	case deps.Products == nil:
		panic("conversation: engine requires a product repository")
	}
	if deps.Matcher == nil {
		deps.Matcher = NewRuleInventoryMatcher()
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	e := &Engine{
		sessions:    deps.Sessions,
		locker:      deps.Locker,
		classifier:  deps.Classifier,
		extractor:   deps.Extractor,
		matcher:     deps.Matcher,
		rules:       catalog.NewRuleMatcher(),
		composer:    deps.Composer,
		llm:         deps.LLM,
		products:    deps.Products,
		knowledge:   deps.Knowledge,
		metrics:     deps.Metrics,
		logger:      deps.Logger.WithComponent("engine"),
		turnTimeout: defaultTurnTimeout,
		maxLen:      defaultMaxMessageLen,
		ragTopK:     defaultRAGTopK,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TurnRequest is one inbound customer message. An empty SessionID starts a
// new session.
type TurnRequest struct {
	SessionID string
	Message   string
}

// Turn is an accepted turn. Stream yields the reply text and ends with a
// Done chunk; the session is saved and unlocked once it closes. Callers
// must drain Stream or cancel the context passed to HandleTurn.
type Turn struct {
	SessionID string
	State     State
	Intent    Intent
	Stream    <-chan StreamChunk
}

// MaxMessageLength is the configured utterance limit.
func (e *Engine) MaxMessageLength() int {
	return e.maxLen
}

// History returns the stored transcript for sessionID.
func (e *Engine) History(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	if !ValidSessionID(sessionID) {
		return nil, ErrInvalidSessionID
	}
	session, err := e.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return session.History, nil
}

// turnPlan is everything decided before the reply starts streaming.
type turnPlan struct {
	state    State
	intent   Intent
	question *preferences.Question
	source   <-chan StreamChunk
	canned   string
	status   string
}

// HandleTurn validates and locks the session, then runs classification,
// extraction, matching and composition. Errors returned here happen before
// any reply text; failures after that point degrade to a canned reply on
// the stream.
func (e *Engine) HandleTurn(ctx context.Context, req TurnRequest) (*Turn, error) {
	msg, err := ValidateMessage(req.Message, e.maxLen)
	if err != nil {
		e.metrics.ObserveRejected("invalid_message")
		return nil, err
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	} else if !ValidSessionID(sessionID) {
		e.metrics.ObserveRejected("invalid_session")
		return nil, ErrInvalidSessionID
	}

	release, err := e.locker.Acquire(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrTurnInProgress) {
			e.metrics.ObserveRejected("busy")
		}
		return nil, err
	}

	started := time.Now()
	turnCtx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	turnCtx, span := llmTracer.Start(turnCtx, "conversation.turn")
	span.SetAttributes(attribute.String("jewelry.session_id", sessionID))

	logger := e.logger.WithSession(sessionID)

	session, err := e.sessions.Load(turnCtx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load session")
		span.End()
		cancel()
		release()
		return nil, err
	}

	plan, userText := e.plan(turnCtx, session, msg, logger)
	span.SetAttributes(
		attribute.String("jewelry.intent", string(plan.intent)),
		attribute.String("jewelry.state", string(plan.state)),
	)

	out := make(chan StreamChunk, 16)
	go func() {
		defer close(out)
		defer release()
		defer cancel()
		defer span.End()

		reply, status := e.forward(ctx, turnCtx, plan, out)
		if status != "ok" {
			span.SetStatus(codes.Error, status)
		}

		session.Append(ChatRoleUser, userText)
		if reply != "" {
			session.Append(ChatRoleAssistant, reply)
		}
		session.LastState = plan.state
		saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
		defer saveCancel()
		if err := e.sessions.Save(saveCtx, session); err != nil {
			span.RecordError(err)
			logger.Error("failed to save session", "error", err)
		}

		elapsed := time.Since(started)
		e.metrics.ObserveTurn(string(plan.state), status, elapsed.Seconds())
		logger.Info("turn completed",
			"intent", plan.intent,
			"state", plan.state,
			"status", status,
			"message_length", len(msg),
			"reply_length", len(reply),
			"duration_ms", elapsed.Milliseconds(),
		)
	}()

	return &Turn{
		SessionID: sessionID,
		State:     plan.state,
		Intent:    plan.intent,
		Stream:    out,
	}, nil
}

// plan runs every stage up to opening the reply stream and mutates session
// preferences and last recommendation. It returns the plan and the
// utterance as it should be recorded in history.
func (e *Engine) plan(ctx context.Context, session *Session, msg string, logger *logging.Logger) (turnPlan, string) {
	guard := ScanForPromptInjection(msg)
	if guard.Blocked {
		logger.Warn("prompt injection blocked", "score", guard.Score, "reasons", guard.Reasons)
		e.metrics.ObserveIntent(string(IntentOffTopic))
		return e.cannedPlan(StateOffTopic, IntentOffTopic, nil, offTopicRedirect, "blocked"), withheldMessage
	}
	if guard.Suspicious() {
		logger.Warn("prompt injection suspected, sanitizing", "score", guard.Score, "reasons", guard.Reasons)
		msg = guard.Sanitized
		if msg == "" {
			return e.cannedPlan(StateOffTopic, IntentOffTopic, nil, offTopicRedirect, "blocked"), withheldMessage
		}
	}

	intent, err := e.classifier.Classify(ctx, session.History, msg)
	if err != nil {
		logger.Warn("intent classification failed", "error", err)
		intent = IntentProductSearch
	}
	e.metrics.ObserveIntent(string(intent))

	extracted, err := e.extractor.Extract(ctx, session.History, msg, session.Preferences)
	if err != nil {
		logger.Warn("preference extraction interrupted", "error", err)
	} else {
		session.Preferences = extracted.Record
		for _, f := range extracted.Failed {
			e.metrics.ObserveExtractionFailure(string(f))
		}
		if len(extracted.Updated) > 0 {
			logger.Debug("preferences updated", "fields", extracted.Updated)
		}
	}

	rec := session.Preferences
	ready := preferences.Ready(rec)
	hasRecommendation := session.LastRecommendedID != ""

	var match *catalog.MatchResult
	if ready && needsMatch(intent, hasRecommendation) {
		m, err := e.match(ctx, rec)
		if err != nil {
			logger.Error("inventory match failed", "error", err)
			return e.cannedPlan(StateRedirectToAlternatives, intent, nil, apologyReply, "fallback"), msg
		}
		match = &m
		e.metrics.ObserveMatch(m.Matched)
	}

	state := SelectState(intent, ready, match, hasRecommendation)

	var question *preferences.Question
	if q, ok := preferences.NextStep(rec); ok {
		question = &q
	}

	var recommended *catalog.Product
	switch state {
	case StateRecommend:
		session.LastRecommendedID = match.Product.ID
	case StateRedirectToAlternatives:
		if match != nil && len(match.Alternatives) > 0 {
			session.LastRecommendedID = match.Alternatives[0].ID
		}
	case StateDetailElaboration, StateObjectionHandling, StateClosing:
		recommended = e.lastRecommended(ctx, session.LastRecommendedID, logger)
	}

	in := ComposeInput{
		State:       state,
		Record:      rec,
		Question:    question,
		Match:       match,
		Recommended: recommended,
		Knowledge:   e.retrieveKnowledge(ctx, state, msg, logger),
		History:     session.History,
		Utterance:   msg,
	}
	req, err := e.composer.Build(in)
	if err != nil {
		logger.Error("failed to build reply prompt", "state", state, "error", err)
		return e.cannedPlan(state, intent, question, "", "fallback"), msg
	}

	stream, err := Stream(ctx, e.llm, req)
	if err != nil {
		logger.Warn("reply generation failed", "state", state, "error", err)
		return e.cannedPlan(state, intent, question, "", "fallback"), msg
	}
	return turnPlan{
		state:    state,
		intent:   intent,
		question: question,
		source:   stream,
		canned:   CannedReply(state, question),
		status:   "ok",
	}, msg
}

func (e *Engine) cannedPlan(state State, intent Intent, question *preferences.Question, text, status string) turnPlan {
	if text == "" {
		text = CannedReply(state, question)
	}
	return turnPlan{
		state:    state,
		intent:   intent,
		question: question,
		source:   singleChunk(LLMResponse{Text: text}),
		canned:   text,
		status:   status,
	}
}

// needsMatch reports whether SelectState will consult the match result.
func needsMatch(intent Intent, hasRecommendation bool) bool {
	if _, ok := shortCircuit[intent]; ok {
		return false
	}
	return !(intent == IntentDetailRequest && hasRecommendation)
}

func (e *Engine) match(ctx context.Context, rec preferences.Record) (catalog.MatchResult, error) {
	ctx, span := llmTracer.Start(ctx, "conversation.match")
	defer span.End()

	products, err := e.products.ListAvailable(ctx)
	if err != nil {
		span.RecordError(err)
		return catalog.MatchResult{}, fmt.Errorf("conversation: list products: %w", err)
	}
	result, err := e.matcher.Match(ctx, rec, products)
	if err != nil {
		span.RecordError(err)
		return e.rules.Match(rec, products), nil
	}
	span.SetAttributes(attribute.Bool("jewelry.matched", result.Matched))
	return result, nil
}

func (e *Engine) lastRecommended(ctx context.Context, id string, logger *logging.Logger) *catalog.Product {
	if id == "" {
		return nil
	}
	p, err := e.products.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, catalog.ErrProductNotFound) {
			logger.Warn("failed to load recommended product", "product_id", id, "error", err)
		}
		return nil
	}
	return p
}

// knowledgeStates are the states whose templates draw on brand notes.
var knowledgeStates = map[State]bool{
	StateDetailElaboration: true,
	StateObjectionHandling: true,
	StateSizingHelp:        true,
	StateBrandInformation:  true,
}

func (e *Engine) retrieveKnowledge(ctx context.Context, state State, query string, logger *logging.Logger) []string {
	if e.knowledge == nil || !knowledgeStates[state] {
		return nil
	}
	snippets, err := e.knowledge.Query(ctx, NamespaceBrand, query, e.ragTopK)
	if err != nil {
		logger.Warn("knowledge retrieval failed", "state", state, "error", err)
		return nil
	}
	return snippets
}

// forward relays plan.source to out until it ends, the turn times out or
// the caller goes away. If the source fails before producing text the
// canned reply is sent instead. It returns the text delivered and a status
// label for metrics.
func (e *Engine) forward(callerCtx, turnCtx context.Context, plan turnPlan, out chan<- StreamChunk) (string, string) {
	var reply strings.Builder
	status := plan.status

	send := func(c StreamChunk) bool {
		select {
		case out <- c:
			return true
		case <-callerCtx.Done():
			return false
		}
	}
	finish := func(cause error) {
		if reply.Len() == 0 {
			status = "fallback"
			if send(StreamChunk{Text: plan.canned}) {
				reply.WriteString(plan.canned)
			}
			send(StreamChunk{Done: true})
			return
		}
		status = "error"
		send(StreamChunk{Done: true, Error: cause})
	}

	for {
		select {
		case <-turnCtx.Done():
			if callerCtx.Err() != nil {
				return reply.String(), "cancelled"
			}
			finish(fmt.Errorf("conversation: reply timed out: %w", turnCtx.Err()))
			return reply.String(), status
		case chunk, ok := <-plan.source:
			if !ok {
				finish(errors.New("conversation: reply stream ended unexpectedly"))
				return reply.String(), status
			}
			if chunk.Error != nil {
				finish(chunk.Error)
				return reply.String(), status
			}
			if chunk.Text != "" {
				if !send(StreamChunk{Text: chunk.Text}) {
					return reply.String(), "cancelled"
				}
				reply.WriteString(chunk.Text)
			}
			if chunk.Done {
				if reply.Len() == 0 {
					finish(errors.New("conversation: empty reply"))
					return reply.String(), status
				}
				send(StreamChunk{Done: true, Usage: chunk.Usage})
				return reply.String(), status
			}
		}
	}
}
