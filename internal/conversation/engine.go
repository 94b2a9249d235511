package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/careloop/clinic-concierge/internal/booking"
	"github.com/careloop/clinic-concierge/internal/clinic"
	"github.com/careloop/clinic-concierge/internal/fallback"
	"github.com/careloop/clinic-concierge/internal/llm"
	"github.com/careloop/clinic-concierge/internal/observability/metrics"
	"github.com/careloop/clinic-concierge/internal/tenancy"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

var engineTracer = otel.Tracer("concierge.internal.conversation")

const basePrompt = `You are a friendly appointment assistant for a healthcare clinic.
Help patients check availability, book, reschedule, or cancel appointments, and answer questions about the clinic.
Use the provided tools for anything involving real appointment data; never invent times or confirmations.
Before booking, make sure you know the service, the chosen time, the patient's first and last name, and their phone number.
Ask one clarifying question at a time. Keep replies short and warm, suitable for a chat window.
If the patient clearly does not want to book, call decline_booking.`

// maxToolCallsPerTurn bounds a single model round. More calls than this are
// recorded as errors rather than executed.
const maxToolCallsPerTurn = 3

// Metadata annotates a reply for the webhook envelope.
type Metadata struct {
	Intent              string  `json:"intent"`
	Confidence          float64 `json:"confidence"`
	FallbackMode        bool    `json:"fallbackMode,omitempty"`
	BookingSystemStatus string  `json:"bookingSystemStatus,omitempty"`
}

// Reply is the outcome of processing one inbound message.
type Reply struct {
	Message          string               `json:"message"`
	SessionID        string               `json:"sessionId"`
	RequiresFollowUp bool                 `json:"requiresFollowUp"`
	FunctionCalls    []FunctionCallRecord `json:"functionCalls"`
	Metadata         Metadata             `json:"metadata"`
}

type sessionPersistence interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Create(ctx context.Context, session *Session) error
	Save(ctx context.Context, session *Session) error
}

type configSource interface {
	Get(ctx context.Context, tenantID, clinicID string) (*clinic.Config, error)
}

type adapterSource interface {
	GetAdapter(ctx context.Context, cfg *clinic.Config) booking.Adapter
}

// Engine drives one conversation turn: model call, tool execution, second
// model call, persistence. Processing is serialized per session.
type Engine struct {
	sessions sessionPersistence
	configs  configSource
	adapters adapterSource
	model    llm.Client
	fb       *fallback.Manager
	metrics  *metrics.ConversationMetrics
	logger   *logging.Logger

	locks          *keyedMutex
	modelTimeout   time.Duration
	bookingTimeout time.Duration
	historyWindow  int
	now            func() time.Time
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Sessions       sessionPersistence
	Configs        configSource
	Adapters       adapterSource
	Model          llm.Client
	Fallback       *fallback.Manager
	Metrics        *metrics.ConversationMetrics
	Logger         *logging.Logger
	ModelTimeout   time.Duration
	BookingTimeout time.Duration
	HistoryWindow  int
}

func NewEngine(opts EngineOptions) *Engine {
	if opts.Sessions == nil {
		panic("conversation: session store is required")
	}
	if opts.Configs == nil {
		panic("conversation: config source is required")
	}
	if opts.Adapters == nil {
		panic("conversation: adapter source is required")
	}
	if opts.Model == nil {
		panic("conversation: model client is required")
	}
	if opts.Fallback == nil {
		opts.Fallback = fallback.NewManager()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.ModelTimeout <= 0 {
		opts.ModelTimeout = 30 * time.Second
	}
	if opts.BookingTimeout <= 0 {
		opts.BookingTimeout = 15 * time.Second
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 12
	}
	return &Engine{
		sessions:       opts.Sessions,
		configs:        opts.Configs,
		adapters:       opts.Adapters,
		model:          opts.Model,
		fb:             opts.Fallback,
		metrics:        opts.Metrics,
		logger:         opts.Logger,
		locks:          newKeyedMutex(),
		modelTimeout:   opts.ModelTimeout,
		bookingTimeout: opts.BookingTimeout,
		historyWindow:  opts.HistoryWindow,
		now:            time.Now,
	}
}

// HandleMessage processes one inbound message. An empty sessionID starts a
// new session; an unknown one returns ErrSessionNotFound, and an unknown
// clinic returns clinic.ErrClinicNotFound. Those are the only errors this
// method surfaces — infrastructure failures degrade to fallback replies.
func (e *Engine) HandleMessage(ctx context.Context, identity tenancy.Identity, sessionID, message string) (*Reply, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.handle_message")
	defer span.End()
	span.SetAttributes(
		attribute.String("concierge.tenant_id", identity.TenantID),
		attribute.String("concierge.clinic_id", identity.ClinicID),
	)

	var session *Session
	isNew := sessionID == ""
	if isNew {
		session = NewSession(identity.TenantID, identity.ClinicID)
		sessionID = session.SessionID
	}

	// The lock covers the load as well as the save, so concurrent messages
	// for one session never race on the same stored snapshot.
	unlock := e.locks.Lock(sessionID)
	defer unlock()

	if !isNew {
		loaded, err := e.sessions.Get(ctx, sessionID)
		if err != nil {
			if err == ErrSessionNotFound {
				return nil, err
			}
			// Store outage: answer from a transient session so the chat
			// stays up. Nothing is persisted for this turn.
			e.logger.ErrorContext(ctx, "session load failed, serving degraded turn",
				"session_id", sessionID, "error", err)
			return e.degradedReply(sessionID, fallback.StoreUnavailable), nil
		}
		session = loaded
	}

	session.AppendTurn(Turn{Role: "user", Content: message})

	cfg, err := e.configs.Get(ctx, identity.TenantID, identity.ClinicID)
	if err != nil {
		// A genuinely unknown clinic is a client addressing error and
		// surfaces; the config cache absorbs infrastructure outages itself,
		// so anything else degrades to the placeholder config.
		if errors.Is(err, clinic.ErrClinicNotFound) {
			return nil, err
		}
		e.logger.ErrorContext(ctx, "config lookup failed", "clinic_id", identity.ClinicID, "error", err)
		cfg = e.fb.BuildFallbackConfig(identity.TenantID, identity.ClinicID)
	}

	adapter := e.adapters.GetAdapter(ctx, cfg)
	reply := e.runTurn(ctx, session, cfg, adapter)

	e.persist(ctx, session, isNew)
	return reply, nil
}

func (e *Engine) runTurn(ctx context.Context, session *Session, cfg *clinic.Config, adapter booking.Adapter) *Reply {
	req := llm.Request{
		System:      []string{basePrompt, cfg.PromptContext(e.now())},
		Messages:    e.history(session),
		Tools:       bookingTools(),
		MaxTokens:   1024,
		Temperature: 0.4,
	}
	if cfg.GreetingMessage != "" {
		req.System = append(req.System, "Preferred greeting for first contact: "+cfg.GreetingMessage)
	}

	first, err := e.completeWithTimeout(ctx, req)
	if err != nil {
		scenario := e.fb.Classify(fmt.Errorf("%w: %v", fallback.ErrModel, err))
		e.observeModel("error")
		text := e.fb.ErrorMessage(scenario)
		session.AppendTurn(Turn{Role: "assistant", Content: text})
		return e.buildReply(session, adapter, text, nil, "fallback", 0.0, false)
	}
	e.observeModel("ok")

	if len(first.ToolCalls) == 0 {
		text := first.Text
		if strings.TrimSpace(text) == "" {
			text = e.fb.ErrorMessage(fallback.GeneralError)
		}
		session.AppendTurn(Turn{Role: "assistant", Content: text})
		return e.buildReply(session, adapter, text, nil, "general", 0.5, first.Degraded)
	}

	records, toolMessages := e.executeToolCalls(ctx, session, adapter, first.ToolCalls)

	// A blocked write means the booking system is unreachable. Serve the
	// templated apology instead of letting the model narrate a confirmation
	// that never happened.
	for _, r := range records {
		if r.Error == bookingUnavailableError {
			if e.metrics != nil {
				e.metrics.ObserveFallback(string(fallback.BookingUnavailable))
			}
			text := e.fb.ErrorMessage(fallback.BookingUnavailable)
			intent := intentFor(first.ToolCalls[0].Name)
			session.AppendTurn(Turn{Role: "assistant", Content: text, FunctionCalls: records})
			session.LastIntent = intent
			return e.buildReply(session, adapter, text, records, intent, 0.0, true)
		}
	}

	// Second round: feed tool results back for the natural-language reply.
	second := req
	second.Messages = append(second.Messages, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   first.Text,
		ToolCalls: first.ToolCalls,
	})
	second.Messages = append(second.Messages, toolMessages...)

	finalText := ""
	degraded := first.Degraded
	resp, err := e.completeWithTimeout(ctx, second)
	if err != nil {
		e.observeModel("error")
		finalText = e.fb.ErrorMessage(fallback.ModelUnavailable)
		degraded = true
	} else {
		e.observeModel("ok")
		finalText = resp.Text
		degraded = degraded || resp.Degraded
	}
	if strings.TrimSpace(finalText) == "" {
		finalText = e.fb.ErrorMessage(fallback.GeneralError)
	}

	intent := intentFor(first.ToolCalls[0].Name)
	confidence := 0.9
	for _, r := range records {
		if r.Error != "" {
			confidence = 0.6
			break
		}
	}

	session.AppendTurn(Turn{Role: "assistant", Content: finalText, FunctionCalls: records})
	session.LastIntent = intent
	return e.buildReply(session, adapter, finalText, records, intent, confidence, degraded)
}

// executeToolCalls validates and runs each requested call. Calls with missing
// required parameters never reach the adapter; the structured error result is
// fed back so the model asks a clarifying question instead.
func (e *Engine) executeToolCalls(ctx context.Context, session *Session, adapter booking.Adapter, calls []llm.ToolCall) ([]FunctionCallRecord, []llm.Message) {
	records := make([]FunctionCallRecord, 0, len(calls))
	messages := make([]llm.Message, 0, len(calls))

	for i, call := range calls {
		record := FunctionCallRecord{
			Name:         call.Name,
			Arguments:    call.Arguments,
			FallbackMode: adapter.FallbackMode(),
		}

		var result map[string]interface{}
		switch {
		case i >= maxToolCallsPerTurn:
			record.Error = "too many function calls in one turn"
			result = map[string]interface{}{"error": record.Error}
		default:
			if missing := missingParams(call); len(missing) > 0 {
				record.Error = "missing required parameters: " + strings.Join(missing, ", ")
				result = map[string]interface{}{
					"error":   "missing required parameters",
					"missing": missing,
				}
			} else {
				result, record.Error = e.executeTool(ctx, session, adapter, call)
			}
		}
		record.Result = result
		records = append(records, record)

		payload, err := json.Marshal(result)
		if err != nil {
			payload = []byte(`{"error":"unserializable result"}`)
		}
		messages = append(messages, llm.Message{
			Role:       llm.RoleTool,
			Content:    string(payload),
			ToolCallID: call.ID,
			ToolName:   call.Name,
		})
	}
	return records, messages
}

func (e *Engine) executeTool(ctx context.Context, session *Session, adapter booking.Adapter, call llm.ToolCall) (map[string]interface{}, string) {
	callCtx, cancel := context.WithTimeout(ctx, e.bookingTimeout)
	defer cancel()

	status := "ok"
	result, errStr := e.dispatchTool(callCtx, session, adapter, call)
	if errStr != "" {
		status = "error"
	}
	if e.metrics != nil {
		e.metrics.ObserveBookingCall(adapter.Name(), call.Name, status)
	}
	return result, errStr
}

// bookingUnavailableError marks a write-path call refused because no real
// booking system is reachable.
const bookingUnavailableError = "booking system unavailable"

func blockedWriteResult() (map[string]interface{}, string) {
	return map[string]interface{}{
		"error":    bookingUnavailableError,
		"scenario": string(fallback.BookingUnavailable),
	}, bookingUnavailableError
}

func (e *Engine) dispatchTool(ctx context.Context, session *Session, adapter booking.Adapter, call llm.ToolCall) (map[string]interface{}, string) {
	// In fallback mode reads may serve clearly-labeled mock data, but writes
	// must never pretend to succeed: a degraded adapter cannot book, cancel,
	// or move anything real.
	if adapter.FallbackMode() {
		switch call.Name {
		case toolBookAppointment, toolCancel, toolReschedule:
			return blockedWriteResult()
		}
	}

	switch call.Name {
	case toolCheckAvailability:
		from, to := parseWindow(call.Arguments, e.now())
		slots, err := adapter.CheckAvailability(ctx, booking.AvailabilityQuery{
			ServiceName:    stringArg(call.Arguments, "service"),
			PractitionerID: stringArg(call.Arguments, "practitioner"),
			From:           from,
			To:             to,
		})
		if err != nil {
			return e.providerFailure(ctx, err)
		}
		rendered := make([]map[string]interface{}, 0, len(slots))
		for _, s := range slots {
			rendered = append(rendered, map[string]interface{}{
				"startsAt":     s.StartsAt.Format(time.RFC3339),
				"endsAt":       s.EndsAt.Format(time.RFC3339),
				"practitioner": s.Practitioner,
			})
		}
		return map[string]interface{}{"slots": rendered, "count": len(rendered)}, ""

	case toolBookAppointment:
		start, err := parseStart(call.Arguments, "startsAt")
		if err != nil {
			e.logger.DebugContext(ctx, "unparseable start time", "error", err)
			return map[string]interface{}{"error": "invalid start time"}, "invalid start time"
		}
		if session.PatientID == "" {
			patient, err := adapter.FindOrCreatePatient(ctx, booking.PatientLookup{
				FirstName: stringArg(call.Arguments, "firstName"),
				LastName:  stringArg(call.Arguments, "lastName"),
				Phone:     stringArg(call.Arguments, "phone"),
				Email:     stringArg(call.Arguments, "email"),
			})
			if err != nil {
				return e.providerFailure(ctx, err)
			}
			session.PatientID = patient.ID
		}
		appt, err := adapter.BookAppointment(ctx, booking.BookingRequest{
			PatientID:      session.PatientID,
			ServiceName:    stringArg(call.Arguments, "service"),
			PractitionerID: stringArg(call.Arguments, "practitioner"),
			StartsAt:       start,
		})
		if err != nil {
			return e.providerFailure(ctx, err)
		}
		session.BookedAppointmentID = appt.ID
		return map[string]interface{}{
			"appointmentId": appt.ID,
			"startsAt":      appt.StartsAt.Format(time.RFC3339),
			"status":        appt.Status,
		}, ""

	case toolCancel:
		appointmentID := stringArg(call.Arguments, "appointmentId")
		if err := adapter.CancelAppointment(ctx, appointmentID); err != nil {
			return e.providerFailure(ctx, err)
		}
		if session.BookedAppointmentID == appointmentID {
			session.BookedAppointmentID = ""
		}
		return map[string]interface{}{"appointmentId": appointmentID, "status": "cancelled"}, ""

	case toolReschedule:
		newStart, err := parseStart(call.Arguments, "newStartsAt")
		if err != nil {
			e.logger.DebugContext(ctx, "unparseable start time", "error", err)
			return map[string]interface{}{"error": "invalid start time"}, "invalid start time"
		}
		appt, err := adapter.RescheduleAppointment(ctx, stringArg(call.Arguments, "appointmentId"), newStart)
		if err != nil {
			return e.providerFailure(ctx, err)
		}
		session.BookedAppointmentID = appt.ID
		return map[string]interface{}{
			"appointmentId": appt.ID,
			"startsAt":      appt.StartsAt.Format(time.RFC3339),
			"status":        appt.Status,
		}, ""

	case toolFindPatient:
		patient, err := adapter.FindOrCreatePatient(ctx, booking.PatientLookup{
			FirstName: stringArg(call.Arguments, "firstName"),
			LastName:  stringArg(call.Arguments, "lastName"),
			Phone:     stringArg(call.Arguments, "phone"),
			Email:     stringArg(call.Arguments, "email"),
		})
		if err != nil {
			return e.providerFailure(ctx, err)
		}
		session.PatientID = patient.ID
		return map[string]interface{}{"patientId": patient.ID, "created": patient.Created}, ""

	case toolDeclineBooking:
		session.Declined = true
		return map[string]interface{}{"acknowledged": true}, ""

	default:
		return map[string]interface{}{"error": "unknown function"}, fmt.Sprintf("unknown function %q", call.Name)
	}
}

// providerFailure converts an adapter error into a structured result. The
// raw error stays in logs; the record and the model only see a safe summary,
// since records are serialized into the webhook response.
func (e *Engine) providerFailure(ctx context.Context, err error) (map[string]interface{}, string) {
	scenario := e.fb.Classify(err)
	if e.metrics != nil {
		e.metrics.ObserveFallback(string(scenario))
	}
	e.logger.WarnContext(ctx, "booking provider call failed", "scenario", string(scenario), "error", err)
	return map[string]interface{}{
		"error":    "booking system request failed",
		"scenario": string(scenario),
	}, "booking system request failed: " + string(scenario)
}

func (e *Engine) completeWithTimeout(ctx context.Context, req llm.Request) (llm.Response, error) {
	ctx, span := engineTracer.Start(ctx, "conversation.model_complete")
	defer span.End()
	span.SetAttributes(attribute.Int("concierge.message_count", len(req.Messages)))

	callCtx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()
	return e.model.Complete(callCtx, req)
}

// history renders the last turns as model messages, newest last.
func (e *Engine) history(session *Session) []llm.Message {
	turns := session.Turns
	if len(turns) > e.historyWindow {
		turns = turns[len(turns)-e.historyWindow:]
	}
	messages := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == "assistant" {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}
	return messages
}

func (e *Engine) buildReply(session *Session, adapter booking.Adapter, text string, records []FunctionCallRecord, intent string, confidence float64, degraded bool) *Reply {
	if records == nil {
		records = []FunctionCallRecord{}
	}
	meta := Metadata{Intent: intent, Confidence: confidence}
	if adapter.FallbackMode() {
		meta.FallbackMode = true
		meta.BookingSystemStatus = "unavailable"
	}
	if degraded {
		meta.FallbackMode = true
	}
	return &Reply{
		Message:          text,
		SessionID:        session.SessionID,
		RequiresFollowUp: !session.Settled(),
		FunctionCalls:    records,
		Metadata:         meta,
	}
}

func (e *Engine) degradedReply(sessionID string, scenario fallback.Scenario) *Reply {
	if e.metrics != nil {
		e.metrics.ObserveFallback(string(scenario))
	}
	return &Reply{
		Message:          e.fb.ErrorMessage(scenario),
		SessionID:        sessionID,
		RequiresFollowUp: true,
		FunctionCalls:    []FunctionCallRecord{},
		Metadata:         Metadata{Intent: "fallback", FallbackMode: true},
	}
}

func (e *Engine) persist(ctx context.Context, session *Session, isNew bool) {
	var err error
	if isNew {
		err = e.sessions.Create(ctx, session)
	} else {
		err = e.sessions.Save(ctx, session)
	}
	if err != nil {
		// The reply already went out; losing one history write must not
		// fail the turn.
		e.logger.ErrorContext(ctx, "failed to persist session",
			"session_id", session.SessionID, "error", err)
	}
}

func (e *Engine) observeModel(status string) {
	if e.metrics != nil {
		e.metrics.ObserveModelCall("primary", status)
	}
}
