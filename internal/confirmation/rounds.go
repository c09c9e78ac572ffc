// Package confirmation runs sponsor yes/no rounds over direct messages.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/foxseedlab/nyukoku/internal/application"
	"github.com/foxseedlab/nyukoku/internal/discord"
	"github.com/foxseedlab/nyukoku/internal/metrics"
)

const (
	ActionYes = "sponsor-yes"
	ActionNo  = "sponsor-no"
)

const maxConcurrentPrompts = 4

type Answer string

const (
	AnswerYes Answer = "yes"
	AnswerNo  Answer = "no"
)

// AnswerFromAction maps a button action to an answer.
func AnswerFromAction(action string) (Answer, bool) {
	switch action {
	case ActionYes:
		return AnswerYes, true
	case ActionNo:
		return AnswerNo, true
	default:
		return "", false
	}
}

type Resolution string

const (
	ResolutionApproved Resolution = "approved"
	ResolutionRejected Resolution = "rejected"
	ResolutionExpired  Resolution = "expired"
)

// Outcome is delivered once per round.
type Outcome struct {
	RoundID     string
	SessionID   string
	Resolution  Resolution
	DecidedBy   string
	Application *application.Application
}

type ResolveHandler func(ctx context.Context, out Outcome)

// Messenger delivers sponsor prompts.
type Messenger interface {
	SendDirectMessage(userID string, msg discord.Message) error
}

type round struct {
	id         string
	sessionID  string
	app        *application.Application
	sponsorIDs []string
	responses  map[string]Answer
	deadline   time.Time
}

func (r *round) expects(sponsorID string) bool {
	for _, id := range r.sponsorIDs {
		if id == sponsorID {
			return true
		}
	}
	return false
}

// resolution is empty while the round is still waiting.
func (r *round) resolution() Resolution {
	for _, a := range r.responses {
		if a == AnswerNo {
			return ResolutionRejected
		}
	}
	for _, id := range r.sponsorIDs {
		if r.responses[id] != AnswerYes {
			return ""
		}
	}
	return ResolutionApproved
}

// Rounds is the registry of open rounds. Rounds live independently of sessions and
// are bounded by waitTimeout.
type Rounds struct {
	mu          sync.Mutex
	rounds      map[string]*round
	messenger   Messenger
	onResolve   ResolveHandler
	waitTimeout time.Duration
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewRounds(messenger Messenger, waitTimeout time.Duration, m *metrics.Metrics) *Rounds {
	return &Rounds{
		rounds:      make(map[string]*round),
		messenger:   messenger,
		waitTimeout: waitTimeout,
		metrics:     m,
		now:         time.Now,
	}
}

func (r *Rounds) SetResolveHandler(fn ResolveHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onResolve = fn
}

// Open registers a round and prompts every sponsor.
func (r *Rounds) Open(ctx context.Context, sessionID string, app *application.Application, sponsorIDs []string) (string, error) {
	id, err := r.Register(sessionID, app, sponsorIDs)
	if err != nil {
		return "", err
	}
	r.Prompt(ctx, id)
	return id, nil
}

// Register records a round without contacting anyone. It does no I/O, so callers may
// hold their own locks around it and call Prompt afterwards.
func (r *Rounds) Register(sessionID string, app *application.Application, sponsorIDs []string) (string, error) {
	if app == nil {
		return "", errors.New("application is required")
	}
	if len(sponsorIDs) == 0 {
		return "", errors.New("at least one sponsor is required")
	}

	rd := &round{
		id:         uuid.NewString(),
		sessionID:  sessionID,
		app:        app,
		sponsorIDs: append([]string(nil), sponsorIDs...),
		responses:  make(map[string]Answer, len(sponsorIDs)),
		deadline:   r.now().Add(r.waitTimeout),
	}

	r.mu.Lock()
	r.rounds[rd.id] = rd
	r.mu.Unlock()

	slog.Info("sponsor round opened", "round_id", rd.id, "session_id", sessionID, "sponsors", len(rd.sponsorIDs), "deadline", rd.deadline)
	return rd.id, nil
}

// Prompt delivers the yes/no prompt to every sponsor of an open round. Delivery
// failures are logged per sponsor and never abort the round.
func (r *Rounds) Prompt(ctx context.Context, roundID string) {
	r.mu.Lock()
	rd, ok := r.rounds[roundID]
	var sponsorIDs []string
	var identity string
	if ok {
		sponsorIDs = append([]string(nil), rd.sponsorIDs...)
		identity = rd.app.Identity
	}
	r.mu.Unlock()
	if !ok {
		slog.Warn("not prompting sponsors of a round that is no longer open", "round_id", roundID)
		return
	}

	logger := slog.With("round_id", roundID)
	prompt := sponsorPrompt(roundID, identity)

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentPrompts)
	for _, sponsorID := range sponsorIDs {
		sponsorID := sponsorID
		g.Go(func() error {
			if err := r.messenger.SendDirectMessage(sponsorID, prompt); err != nil {
				logger.Warn("failed to deliver sponsor prompt", "sponsor_id", sponsorID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// RecordResponse stores a sponsor answer. A repeated answer from the same sponsor
// overwrites the previous one. It reports false for unknown or resolved rounds and for
// users who are not sponsors of the round.
func (r *Rounds) RecordResponse(ctx context.Context, roundID, sponsorID string, answer Answer) bool {
	logger := slog.With("round_id", roundID, "sponsor_id", sponsorID)

	r.mu.Lock()
	rd, ok := r.rounds[roundID]
	if !ok {
		r.mu.Unlock()
		logger.Warn("sponsor answer for unknown or resolved round")
		return false
	}
	if !rd.expects(sponsorID) {
		r.mu.Unlock()
		logger.Warn("answer from a user who is not a sponsor of the round")
		return false
	}

	rd.responses[sponsorID] = answer
	resolution := rd.resolution()
	if resolution != "" {
		delete(r.rounds, roundID)
	}
	handler := r.onResolve
	r.mu.Unlock()

	logger.Info("sponsor answered", "answer", answer)
	if resolution != "" {
		decidedBy := ""
		if resolution == ResolutionRejected {
			decidedBy = sponsorID
		}
		r.resolve(ctx, handler, rd, resolution, decidedBy)
	}
	return true
}

// Expire resolves every round whose deadline passed before now.
func (r *Rounds) Expire(ctx context.Context, now time.Time) int {
	r.mu.Lock()
	var expired []*round
	for id, rd := range r.rounds {
		if now.After(rd.deadline) {
			expired = append(expired, rd)
			delete(r.rounds, id)
		}
	}
	handler := r.onResolve
	r.mu.Unlock()

	for _, rd := range expired {
		slog.Info("sponsor round expired", "round_id", rd.id, "session_id", rd.sessionID,
			"answered", len(rd.responses), "sponsors", len(rd.sponsorIDs))
		r.resolve(ctx, handler, rd, ResolutionExpired, "")
	}
	return len(expired)
}

func (r *Rounds) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rounds)
}

func (r *Rounds) resolve(ctx context.Context, handler ResolveHandler, rd *round, resolution Resolution, decidedBy string) {
	r.metrics.IncrementSponsorRound(string(resolution))
	if handler == nil {
		slog.Warn("sponsor round resolved without a handler", "round_id", rd.id, "resolution", resolution)
		return
	}
	handler(ctx, Outcome{
		RoundID:     rd.id,
		SessionID:   rd.sessionID,
		Resolution:  resolution,
		DecidedBy:   decidedBy,
		Application: rd.app,
	})
}

func sponsorPrompt(roundID, applicant string) discord.Message {
	return discord.Message{
		Content: fmt.Sprintf("%s さんからあなたが合流者だと申請がありました。これは正しいですか？", applicant),
		Buttons: []discord.Button{
			{CustomID: discord.CustomID(ActionYes, roundID), Label: "はい", Style: discord.ButtonSuccess},
			{CustomID: discord.CustomID(ActionNo, roundID), Label: "いいえ", Style: discord.ButtonDanger},
		},
	}
}
