package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"eduquest-progress/internal/app"
	"eduquest-progress/internal/connectivity"
	"eduquest-progress/internal/domain"
	"eduquest-progress/internal/events"
	"eduquest-progress/internal/progress"
	"eduquest-progress/internal/reconcile"
	"eduquest-progress/internal/store"
)

// Syncer is the part of the reconciler the shell can drive.
type Syncer interface {
	SyncAll(ctx context.Context) error
	Status() reconcile.StatusView
}

// WSHandler bridges a UI shell to the engine: commands come in as JSON
// messages and engine events are pushed back on the same socket.
type WSHandler struct {
	service  *app.QuizService
	progress *progress.Service
	store    *store.Store
	sync     Syncer
	monitor  *connectivity.Monitor
	bus      events.Subscriber
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, prog *progress.Service, st *store.Store, syncer Syncer, monitor *connectivity.Monitor, bus events.Subscriber) *WSHandler {
	return &WSHandler{
		service:  service,
		progress: prog,
		store:    st,
		sync:     syncer,
		monitor:  monitor,
		bus:      bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type commandPayload struct {
	QuizID        string              `json:"quizId"`
	Answer        *domain.Answer      `json:"answer"`
	LessonID      string              `json:"lessonId"`
	TotalSegments int                 `json:"totalSegments"`
	Segment       int                 `json:"segment"`
	Percent       float64             `json:"percent"`
	Online        *bool               `json:"online"`
	EffectiveType string              `json:"effectiveType"`
	GoalID        string              `json:"goalId"`
	Goal          *progress.GoalDraft `json:"goal"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message    string `json:"message"`
	Validation bool   `json:"validation,omitempty"`
}

type questionView struct {
	ID         string              `json:"id"`
	Type       domain.QuestionType `json:"type"`
	Prompt     string              `json:"prompt"`
	Options    []domain.Option     `json:"options,omitempty"`
	Difficulty string              `json:"difficulty,omitempty"`
	Points     int                 `json:"points"`
}

type sessionView struct {
	QuizID         string             `json:"quizId"`
	Title          string             `json:"title"`
	TotalQuestions int                `json:"totalQuestions"`
	Session        domain.QuizSession `json:"session"`
	Question       *questionView      `json:"question,omitempty"`
	CanSubmit      bool               `json:"canSubmit"`
	CanGoNext      bool               `json:"canGoNext"`
	Result         *domain.QuizResult `json:"result,omitempty"`
}

type lessonView struct {
	domain.LessonProgress
	CanProceed      bool `json:"canProceed"`
	ProgressPercent int  `json:"progressPercent"`
}

type storagePayload struct {
	Degraded bool   `json:"degraded"`
	Message  string `json:"message,omitempty"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the engine.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	updates, cancel := h.bus.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Only the writer goroutine touches the connection for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("[ws] write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				msg, ok := h.eventMessage(ev)
				if !ok {
					continue
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "sync", Payload: h.sync.Status()}
	send <- outboundMessage[any]{Type: "connectivity", Payload: h.monitor.State()}
	if h.store.Degraded() {
		send <- outboundMessage[any]{Type: "storage", Payload: storagePayload{Degraded: true}}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var cmd commandPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &cmd); err != nil {
				send <- errorMessage(errors.New("invalid payload"))
				continue
			}
		}
		reply, err := h.handle(ctx, inbound.Type, cmd)
		if err != nil {
			send <- errorMessage(err)
			continue
		}
		for _, msg := range reply {
			send <- msg
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, typ string, cmd commandPayload) ([]outboundMessage[any], error) {
	switch typ {
	case "quiz.open", "quiz.start", "quiz.answer", "quiz.next", "quiz.previous", "quiz.submit", "quiz.retake", "quiz.close":
		return h.handleQuiz(ctx, typ, cmd)
	case "lesson.open", "lesson.goto", "lesson.advance", "lesson.previous", "lesson.interactive", "lesson.media", "lesson.bookmark":
		return h.handleLesson(ctx, typ, cmd)
	case "connectivity":
		if cmd.Online != nil {
			h.monitor.SetOnline(*cmd.Online)
		}
		if cmd.EffectiveType != "" {
			h.monitor.SetEffectiveType(cmd.EffectiveType)
		}
		return nil, nil
	case "goal.add":
		if cmd.Goal == nil {
			return nil, errors.New("missing goal")
		}
		if _, err := h.progress.AddGoal(ctx, *cmd.Goal); err != nil {
			return nil, err
		}
		return h.goals(ctx), nil
	case "goal.complete":
		if err := h.progress.CompleteGoal(ctx, cmd.GoalID); err != nil {
			return nil, err
		}
		return h.goals(ctx), nil
	case "goal.delete":
		if err := h.progress.DeleteGoal(ctx, cmd.GoalID); err != nil {
			return nil, err
		}
		return h.goals(ctx), nil
	case "goals":
		return h.goals(ctx), nil
	case "summary":
		return []outboundMessage[any]{{Type: "summary", Payload: h.progress.Summary(ctx)}}, nil
	case "sync":
		if err := h.sync.SyncAll(ctx); err != nil && !errors.Is(err, domain.ErrOffline) {
			log.Printf("[ws] sync: %v", err)
		}
		return []outboundMessage[any]{{Type: "sync", Payload: h.sync.Status()}}, nil
	}
	return nil, errors.New("unsupported message type")
}

func (h *WSHandler) handleQuiz(ctx context.Context, typ string, cmd commandPayload) ([]outboundMessage[any], error) {
	if cmd.QuizID == "" {
		return nil, errors.New("missing quizId")
	}
	if typ == "quiz.close" {
		h.service.Close(ctx, cmd.QuizID)
		return nil, nil
	}
	c, err := h.service.Open(ctx, cmd.QuizID)
	if err != nil {
		return nil, err
	}

	switch typ {
	case "quiz.start":
		err = c.Start(ctx)
	case "quiz.answer":
		if cmd.Answer == nil {
			return nil, errors.New("missing answer")
		}
		err = c.SelectAnswer(ctx, *cmd.Answer)
	case "quiz.next":
		err = c.GoNext(ctx)
	case "quiz.previous":
		err = c.GoPrevious(ctx)
	case "quiz.submit":
		// The countdown submits on its own; a manual submit needs every answer.
		if !c.CanSubmit() && c.Session().State != domain.StateSubmitted {
			return nil, errors.New("answer every question before submitting")
		}
		// The submitted event carries the result.
		_, err = c.Submit(ctx)
	case "quiz.retake":
		err = c.Retake(ctx)
	}
	if err != nil {
		return nil, err
	}
	return []outboundMessage[any]{{Type: "session", Payload: viewSession(c)}}, nil
}

func (h *WSHandler) handleLesson(ctx context.Context, typ string, cmd commandPayload) ([]outboundMessage[any], error) {
	if cmd.LessonID == "" {
		return nil, errors.New("missing lessonId")
	}
	t, err := h.service.OpenLesson(ctx, cmd.LessonID, cmd.TotalSegments)
	if err != nil {
		return nil, err
	}

	switch typ {
	case "lesson.goto":
		err = t.GoToSegment(ctx, cmd.Segment)
	case "lesson.advance":
		err = t.Advance(ctx)
	case "lesson.previous":
		err = t.Previous(ctx)
	case "lesson.interactive":
		err = t.MarkInteractiveComplete(ctx)
	case "lesson.media":
		err = t.OnMediaProgress(ctx, cmd.Percent)
	case "lesson.bookmark":
		err = t.ToggleBookmark(ctx)
	}
	if err != nil {
		return nil, err
	}
	return []outboundMessage[any]{{Type: "lesson", Payload: viewLesson(t)}}, nil
}

func (h *WSHandler) goals(ctx context.Context) []outboundMessage[any] {
	return []outboundMessage[any]{{Type: "goals", Payload: h.progress.Goals(ctx)}}
}

// eventMessage maps a bus event to the message pushed to the shell.
func (h *WSHandler) eventMessage(ev events.Event) (outboundMessage[any], bool) {
	switch ev.Kind {
	case events.QuizTick:
		return outboundMessage[any]{Type: "tick", Payload: ev.Payload}, true
	case events.QuizSubmitted:
		return outboundMessage[any]{Type: "submitted", Payload: ev.Payload}, true
	case events.AchievementUnlocked:
		return outboundMessage[any]{Type: "achievement", Payload: ev.Payload}, true
	case events.LessonUpdated:
		return outboundMessage[any]{Type: "lesson.updated", Payload: ev.Payload}, true
	case events.ConnectivityChanged:
		return outboundMessage[any]{Type: "connectivity", Payload: ev.Payload}, true
	case events.SyncStarted, events.SyncCompleted, events.SyncFailed:
		return outboundMessage[any]{Type: "sync", Payload: h.sync.Status()}, true
	case events.StorageDegraded:
		msg, _ := ev.Payload.(string)
		return outboundMessage[any]{Type: "storage", Payload: storagePayload{Degraded: true, Message: msg}}, true
	}
	return outboundMessage[any]{}, false
}

func viewSession(c *app.QuizController) sessionView {
	quiz := c.Quiz()
	session := c.Session()
	view := sessionView{
		QuizID:         quiz.ID,
		Title:          quiz.Title,
		TotalQuestions: len(quiz.Questions),
		Session:        session,
		CanSubmit:      c.CanSubmit(),
		CanGoNext:      c.CanGoNext(),
	}
	if i := session.CurrentQuestionIndex; i >= 0 && i < len(quiz.Questions) {
		q := viewQuestion(quiz.Questions[i])
		view.Question = &q
	}
	if result, ok := c.Result(); ok {
		view.Result = &result
	}
	return view
}

// viewQuestion strips the correct answer from a question.
func viewQuestion(q domain.Question) questionView {
	v := questionView{ID: q.ID, Prompt: q.Prompt, Difficulty: q.Difficulty, Points: q.PointValue()}
	if q.Kind != nil {
		v.Type = q.Kind.Type()
	}
	if mc, ok := q.Kind.(domain.MultipleChoice); ok {
		v.Options = mc.Options
	}
	return v
}

func viewLesson(t *app.LessonTracker) lessonView {
	return lessonView{
		LessonProgress:  t.Progress(),
		CanProceed:      t.CanProceed(),
		ProgressPercent: t.ProgressPercent(),
	}
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error(), Validation: domain.IsValidation(err)}}
}
