package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/foxseedlab/nyukoku/internal/application"
	"github.com/foxseedlab/nyukoku/internal/config"
	"github.com/foxseedlab/nyukoku/internal/confirmation"
	"github.com/foxseedlab/nyukoku/internal/discord"
	"github.com/foxseedlab/nyukoku/internal/inspection"
	"github.com/foxseedlab/nyukoku/internal/metrics"
	"github.com/foxseedlab/nyukoku/internal/repository"
	"github.com/foxseedlab/nyukoku/internal/verifier"
	"github.com/foxseedlab/nyukoku/internal/webhook"
	"golang.org/x/sync/errgroup"
)

var errInspectionTimeout = errors.New("inspection timed out")

const maxConcurrentFlushes = 4

// UIAction is a button press or menu selection addressed to a session.
type UIAction struct {
	Kind   string
	UserID string
	Values []string
}

// Manager drives sessions through the review workflow. A session is only mutated
// while its lock is held, and only the handler that moves it into a terminal state
// removes it and flushes its audit.
type Manager struct {
	cfg       *config.Config
	store     *Store
	rounds    *confirmation.Rounds
	inspector inspection.Inspector
	discord   discord.Client
	repo      repository.AuditRepository
	webhook   webhook.Sender
	metrics   *metrics.Metrics
	loc       *time.Location
	now       func() time.Time
}

func NewManager(
	cfg *config.Config,
	store *Store,
	rounds *confirmation.Rounds,
	inspector inspection.Inspector,
	dc discord.Client,
	repo repository.AuditRepository,
	wh webhook.Sender,
	m *metrics.Metrics,
) *Manager {
	mgr := &Manager{
		cfg:       cfg,
		store:     store,
		rounds:    rounds,
		inspector: inspector,
		discord:   dc,
		repo:      repo,
		webhook:   wh,
		metrics:   m,
		loc:       cfg.AuditLocation(),
		now:       time.Now,
	}
	rounds.SetResolveHandler(mgr.onRoundResolved)
	return mgr
}

func sessionLogger(sess *Session) *slog.Logger {
	return slog.With("session_id", sess.ID, "thread_id", sess.ThreadID, "applicant_id", sess.ApplicantID)
}

func (m *Manager) HandleMessage(event discord.MessageEvent) {
	if event.AuthorIsBot {
		return
	}
	if event.GuildID != m.cfg.DiscordGuildID {
		slog.Debug("ignoring message for different guild", "event_guild_id", event.GuildID, "configured_guild_id", m.cfg.DiscordGuildID)
		return
	}
	ctx := context.Background()
	content := strings.TrimSpace(event.Content)

	if m.cfg.StatusKeyword != "" && content == m.cfg.StatusKeyword {
		m.reportStatus(event)
		return
	}
	if event.ParentChannelID != m.cfg.TicketCategoryID {
		return
	}
	if event.MentionsBot && strings.Contains(content, m.cfg.SessionTrigger) {
		m.OpenSession(ctx, event.ChannelID, event.AuthorID)
		return
	}
	m.OnApplicantMessage(ctx, event.ChannelID, event.AuthorID, event.Content)
}

func (m *Manager) HandleComponent(event discord.ComponentEvent) {
	ctx := context.Background()
	action, ref, ok := discord.ParseCustomID(event.CustomID)
	if !ok {
		slog.Debug("ignoring component without a reference", "custom_id", event.CustomID)
		return
	}
	if answer, ok := confirmation.AnswerFromAction(action); ok {
		m.OnSponsorReply(ctx, ref, event.UserID, answer, event.Responder)
		return
	}
	switch action {
	case actionStart, actionCancel, actionEdition, actionConfirm, actionEdit:
		m.OnUIAction(ctx, ref, UIAction{Kind: action, UserID: event.UserID, Values: event.Values}, event.Responder)
	default:
		slog.Debug("ignoring unknown component action", "custom_id", event.CustomID)
	}
}

// OpenSession starts a review for the applicant in the thread.
func (m *Manager) OpenSession(ctx context.Context, threadID, applicantID string) {
	sess, created := m.store.Create(threadID, applicantID)
	logger := sessionLogger(sess)
	if !created {
		logger.Info("session already in progress")
		m.notifyThread(threadID, messageAlreadyInProgress)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	m.metrics.IncrementSessionOpened()
	sess.logf(m.now(), "セッション開始")
	if err := m.send(threadID, introMessage(sess.ID)); err != nil {
		logger.Error("failed to send intro; dropping session", "error", err)
		m.store.Remove(sess.ID)
		return
	}
	logger.Info("session opened")
}

// OnApplicantMessage feeds free text into the current input step. Text arriving in a
// step that does not take text is ignored.
func (m *Manager) OnApplicantMessage(ctx context.Context, threadID, applicantID, text string) {
	sess, ok := m.store.FindByParticipant(threadID, applicantID)
	if !ok {
		return
	}
	logger := sessionLogger(sess)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	defer m.recoverHandler(sess, func() { m.notifyThread(threadID, messageGenericError) })

	if sess.State.Terminal() {
		return
	}
	now := m.now()
	sess.LastActivityAt = now

	next, ok := textInputs[sess.State]
	if !ok {
		logger.Debug("ignoring text outside an input step", "state", sess.State)
		return
	}

	text = strings.TrimSpace(text)
	if text == "" {
		m.notifyThread(threadID, promptFor(sess.State))
		return
	}

	answers := sess.Answers
	var logLine string
	switch sess.State {
	case StateIdentityInput:
		answers.Identity = text
		logLine = "MCID入力: " + text
	case StateNationalityInput:
		answers.Nationality = text
		logLine = "国籍入力: " + text
	case StatePeriodInput:
		answers.Period = text
		logLine = "期間・目的入力: " + text
	case StateCompanionsInput:
		answers.Companions = parseList(text)
		logLine = "同行者入力: " + joinOrNone(answers.Companions)
	case StateSponsorInput:
		answers.Sponsors = parseList(text)
		logLine = "合流者入力: " + joinOrNone(answers.Sponsors)
	}

	prompt := discord.Message{Content: promptFor(next), Buttons: []discord.Button{cancelButton(sess.ID)}}
	if next == StateConfirmPending {
		prompt = confirmMessage(sess.ID, answers)
	}
	if err := m.send(threadID, prompt); err != nil {
		logger.Error("failed to send next prompt", "error", err, "state", sess.State)
		sess.logf(now, "応答送信エラー: %v", err)
		m.notifyThread(threadID, messageGenericError)
		return
	}

	sess.Answers = answers
	sess.logf(now, "%s", logLine)
	m.transition(sess, next, now)
}

// OnUIAction applies a button or menu action. Actions that the current state does not
// accept are answered without changing the session.
func (m *Manager) OnUIAction(ctx context.Context, sessionID string, action UIAction, responder *discord.Responder) {
	sess, ok := m.store.Get(sessionID)
	if !ok {
		m.notice(responder, messageSessionNotFound)
		return
	}
	if m.applyUIAction(ctx, sess, action, responder) {
		m.inspect(ctx, sess, responder)
	}
}

func (m *Manager) applyUIAction(ctx context.Context, sess *Session, action UIAction, responder *discord.Responder) (startInspection bool) {
	logger := sessionLogger(sess)

	var post afterUnlock
	defer post.run()
	sess.mu.Lock()
	defer sess.mu.Unlock()
	defer m.recoverHandler(sess, func() { m.notice(responder, messageGenericError) })

	if sess.State.Terminal() {
		m.notice(responder, messageSessionNotFound)
		return false
	}
	if action.UserID != "" && action.UserID != sess.ApplicantID {
		m.notice(responder, messageNotOwner)
		return false
	}

	now := m.now()
	switch {
	case action.Kind == actionStart && sess.State == StateStart:
		if !m.update(sess, responder, editionMessage(sess.ID)) {
			return false
		}
		sess.logf(now, "概要同意: start")
		m.transition(sess, StateEditionSelect, now)

	case action.Kind == actionCancel && sess.State.Cancellable():
		m.update(sess, responder, discord.Message{Content: messageCancelled})
		sess.logf(now, "ユーザーが途中キャンセル")
		m.transition(sess, StateCancelled, now)
		m.finish(ctx, sess, &post)

	case action.Kind == actionEdition && sess.State == StateEditionSelect:
		edition, ok := editionFromValues(action.Values)
		if !ok {
			m.notice(responder, messageEditionPrompt)
			return false
		}
		prompt := discord.Message{Content: messageIdentityPrompt, Buttons: []discord.Button{cancelButton(sess.ID)}}
		if !m.update(sess, responder, prompt) {
			return false
		}
		sess.Answers.Edition = edition
		sess.logf(now, "版選択: %s", edition)
		m.transition(sess, StateIdentityInput, now)

	case action.Kind == actionEdit && sess.State == StateConfirmPending:
		if !m.update(sess, responder, editionMessage(sess.ID)) {
			return false
		}
		sess.logf(now, "修正")
		m.transition(sess, StateEditionSelect, now)

	case action.Kind == actionConfirm && sess.State == StateConfirmPending:
		if err := responder.Acknowledge(); err != nil {
			logger.Error("failed to acknowledge confirm", "error", err)
			m.notice(responder, messageGenericError)
			return false
		}
		if err := responder.Progress(discord.Message{Content: messageInspecting}); err != nil {
			logger.Warn("failed to show inspection progress", "error", err)
		}
		sess.logf(now, "確定ボタン押下")
		m.transition(sess, StateInspecting, now)
		return true

	case action.Kind == actionConfirm && sess.State == StateInspecting:
		m.notice(responder, messageInspectionBusy)

	default:
		logger.Debug("ignoring action not accepted in current state", "action", action.Kind, "state", sess.State)
		m.notice(responder, messageUnsupportedAction)
	}
	return false
}

func (m *Manager) inspect(ctx context.Context, sess *Session, responder *discord.Responder) {
	logger := sessionLogger(sess)

	sess.mu.Lock()
	sub := inspection.Submission{Edition: sess.Answers.Edition, Text: submissionText(sess.Answers)}
	sess.mu.Unlock()

	verdict, err := m.runInspection(ctx, sub)

	var post afterUnlock
	defer post.run()
	sess.mu.Lock()
	defer sess.mu.Unlock()
	defer m.recoverHandler(sess, func() {
		if sess.State == StateInspecting {
			sess.State = StateConfirmPending
		}
		m.notice(responder, messageGenericError)
	})

	if _, live := m.store.Get(sess.ID); !live || sess.State != StateInspecting {
		logger.Warn("discarding inspection result for a session that already ended", "state", sess.State)
		return
	}

	now := m.now()
	for _, line := range verdict.Trace {
		sess.logf(now, "%s", line)
	}

	switch {
	case errors.Is(err, errInspectionTimeout):
		logger.Warn("inspection timed out", "timeout", m.cfg.InspectionTimeout)
		m.metrics.IncrementTimeout()
		sess.logf(now, "タイムアウトエラー")
		m.complete(sess, responder, discord.Message{Content: messageTimedOut})
		m.transition(sess, StateTimedOut, now)
		m.finish(ctx, sess, &post)

	case err != nil:
		m.inspectionFailed(sess, responder, err, now)

	case verdict.PendingSponsors():
		roundID, err := m.rounds.Register(sess.ID, verdict.Application, verdict.PendingSponsorIDs)
		if err != nil {
			m.inspectionFailed(sess, responder, err, now)
			return
		}
		sess.RoundID = roundID
		sess.Application = verdict.Application
		sess.logf(now, "合流者確認依頼: %s", strings.Join(verdict.PendingSponsorIDs, ", "))
		m.transition(sess, StateSponsorWait, now)
		m.complete(sess, responder, discord.Message{Content: messageSponsorWait})
		post.add(func() { m.rounds.Prompt(ctx, roundID) })
		logger.Info("waiting on sponsors", "round_id", roundID, "sponsors", len(verdict.PendingSponsorIDs))

	case verdict.Approved:
		sess.Application = verdict.Application
		m.complete(sess, responder, approvalMessage(verdict.Application, m.today(), m.cfg.MaxStayDays))
		m.publish(sess, verdict.Application)
		m.transition(sess, StateApproved, now)
		m.finish(ctx, sess, &post)

	default:
		m.complete(sess, responder, discord.Message{Content: verdict.Reason})
		m.transition(sess, StateRejected, now)
		m.finish(ctx, sess, &post)
	}
}

// inspectionFailed puts the session back at the confirm step so the applicant can retry.
func (m *Manager) inspectionFailed(sess *Session, responder *discord.Responder, err error, now time.Time) {
	sessionLogger(sess).Error("inspection failed", "error", err)
	sess.logf(now, "審査エラー: %v", err)
	m.transition(sess, StateConfirmPending, now)
	m.complete(sess, responder, discord.Message{Content: messageInspectionFailed, Buttons: confirmButtons(sess.ID)})
}

// runInspection races the pipeline against the inspection timeout. The pipeline
// context is cancelled when the timeout wins and its late result is dropped.
func (m *Manager) runInspection(ctx context.Context, sub inspection.Submission) (inspection.Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.InspectionTimeout)
	defer cancel()

	type result struct {
		verdict inspection.Verdict
		err     error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("inspection panicked: %v", r)}
			}
		}()
		v, err := m.inspector.Run(ctx, sub)
		done <- result{verdict: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return inspection.Verdict{}, errInspectionTimeout
		}
		return r.verdict, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return inspection.Verdict{}, errInspectionTimeout
		}
		return inspection.Verdict{}, ctx.Err()
	}
}

// OnSponsorReply records a sponsor's answer and acknowledges it in the DM.
func (m *Manager) OnSponsorReply(ctx context.Context, roundID, sponsorID string, answer confirmation.Answer, responder *discord.Responder) {
	if !m.rounds.RecordResponse(ctx, roundID, sponsorID, answer) {
		m.notice(responder, messageSponsorInvalid)
		return
	}
	label := "はい"
	if answer == confirmation.AnswerNo {
		label = "いいえ"
	}
	if responder == nil {
		return
	}
	if err := responder.Update(discord.Message{Content: fmt.Sprintf("%s（%s）", messageSponsorThanks, label)}); err != nil {
		slog.Warn("failed to acknowledge sponsor answer", "round_id", roundID, "sponsor_id", sponsorID, "error", err)
	}
}

func (m *Manager) onRoundResolved(ctx context.Context, out confirmation.Outcome) {
	sess, ok := m.store.Get(out.SessionID)
	if !ok {
		slog.Warn("sponsor round resolved for a session that no longer exists", "round_id", out.RoundID, "session_id", out.SessionID)
		return
	}
	logger := sessionLogger(sess).With("round_id", out.RoundID)

	var post afterUnlock
	defer post.run()
	sess.mu.Lock()
	defer sess.mu.Unlock()
	defer m.recoverHandler(sess, func() { m.notifyThread(sess.ThreadID, messageGenericError) })

	if sess.State != StateSponsorWait || sess.RoundID != out.RoundID {
		logger.Warn("ignoring sponsor round resolution", "state", sess.State)
		return
	}

	now := m.now()
	app := sess.Application
	if app == nil {
		app = out.Application
	}
	switch out.Resolution {
	case confirmation.ResolutionApproved:
		sess.logf(now, "合流者確認: 承認")
		if err := m.send(sess.ThreadID, approvalMessage(app, m.today(), m.cfg.MaxStayDays)); err != nil {
			logger.Error("failed to notify applicant of approval", "error", err)
		}
		m.publish(sess, app)
		m.transition(sess, StateApproved, now)
	case confirmation.ResolutionRejected:
		sess.logf(now, "合流者確認: 拒否 (%s)", out.DecidedBy)
		m.notifyThread(sess.ThreadID, messageSponsorRejected)
		m.transition(sess, StateRejected, now)
	default:
		sess.logf(now, "合流者確認: 期限切れ")
		m.notifyThread(sess.ThreadID, messageSponsorExpired)
		m.transition(sess, StateRejected, now)
	}
	sess.RoundID = ""
	logger.Info("sponsor round resolved", "resolution", out.Resolution)
	m.finish(ctx, sess, &post)
}

// Tick evicts idle sessions and expires overdue sponsor rounds.
func (m *Manager) Tick(ctx context.Context, now time.Time) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentFlushes)
	for _, sess := range m.store.Sweep(now, m.cfg.IdleThreshold) {
		sess := sess
		sessionLogger(sess).Info("session evicted after idle timeout")
		var post afterUnlock
		sess.mu.Lock()
		m.finish(ctx, sess, &post)
		sess.mu.Unlock()
		g.Go(func() error {
			m.notifyThread(sess.ThreadID, messageIdleTimeout)
			post.run()
			return nil
		})
	}
	_ = g.Wait()
	if n := m.rounds.Expire(ctx, now); n > 0 {
		slog.Info("expired sponsor rounds", "count", n)
	}
}

func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	slog.Info("session sweeper started", "interval", m.cfg.SweepInterval, "idle_threshold", m.cfg.IdleThreshold)
	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case t := <-ticker.C:
			m.Tick(ctx, t)
		}
	}
}

func (m *Manager) OpenSessions() int {
	return m.store.Count()
}

func (m *Manager) OpenRounds() int {
	return m.rounds.Count()
}

// reportStatus answers the status keyword as a reply to the admin's message.
func (m *Manager) reportStatus(event discord.MessageEvent) {
	msg := statusMessage(m.store.Count(), m.rounds.Count())
	var err error
	if event.Reply != nil {
		err = event.Reply(msg)
	} else {
		err = m.send(event.ChannelID, msg)
	}
	if err != nil {
		slog.Error("failed to send status report", "error", err, "channel_id", event.ChannelID)
	}
}

func (m *Manager) transition(sess *Session, to State, now time.Time) {
	sessionLogger(sess).Debug("session transition", "from", sess.State, "to", to)
	sess.State = to
	sess.LastActivityAt = now
}

// finish removes a session that reached a terminal state and queues its audit flush
// on post. Callers hold the session lock; the flush runs once it is released.
func (m *Manager) finish(ctx context.Context, sess *Session, post *afterUnlock) {
	m.store.Remove(sess.ID)
	endedAt := m.now()
	sess.logf(endedAt, "セッション終了: %s", outcomeLabel(sess.State))
	m.metrics.IncrementSessionEnded(string(sess.State))

	audit := auditSnapshot{
		sessionID:   sess.ID,
		threadID:    sess.ThreadID,
		applicantID: sess.ApplicantID,
		state:       sess.State,
		identity:    sess.Answers.Identity,
		nationality: sess.Answers.Nationality,
		startedAt:   sess.StartedAt,
		endedAt:     endedAt,
		lines:       append([]string(nil), sess.AuditLog...),
	}
	if sess.Application != nil {
		audit.identity = sess.Application.Identity
		audit.nationality = sess.Application.Nationality
	}
	post.add(func() { m.flushAudit(ctx, audit) })
}

// auditSnapshot is a finished session's audit, copied while its lock was held.
type auditSnapshot struct {
	sessionID   string
	threadID    string
	applicantID string
	state       State
	identity    string
	nationality string
	startedAt   time.Time
	endedAt     time.Time
	lines       []string
}

func (m *Manager) flushAudit(ctx context.Context, audit auditSnapshot) {
	logger := slog.With("session_id", audit.sessionID, "thread_id", audit.threadID, "applicant_id", audit.applicantID)

	if err := m.discord.SendChannelMessageWithFile(discord.FileMessage{
		ChannelID: m.cfg.LogChannelID,
		Content:   auditNotice(audit.sessionID, audit.state),
		Filename:  auditFilename(audit.threadID),
		FileBody:  []byte(strings.Join(audit.lines, "\n")),
	}); err != nil {
		logger.Error("failed to post audit log", "error", err)
	}

	if err := m.repo.SaveAudit(ctx, repository.SaveAuditInput{
		SessionID:   audit.sessionID,
		ThreadID:    audit.threadID,
		ApplicantID: audit.applicantID,
		Outcome:     string(audit.state),
		StartedAt:   audit.startedAt,
		EndedAt:     audit.endedAt,
		LogLines:    audit.lines,
	}); err != nil {
		logger.Error("failed to save audit record", "error", err)
	}

	if err := m.webhook.SendAudit(ctx, webhook.AuditWebhookPayload{
		SessionID:   audit.sessionID,
		ThreadID:    audit.threadID,
		ApplicantID: audit.applicantID,
		Outcome:     string(audit.state),
		Identity:    audit.identity,
		Nationality: audit.nationality,
		StartedAt:   audit.startedAt,
		EndedAt:     audit.endedAt,
		LogLines:    audit.lines,
	}); err != nil {
		logger.Error("failed to send audit webhook", "error", err)
	}
	logger.Info("session ended", "outcome", audit.state, "log_lines", len(audit.lines))
}

// afterUnlock collects work that must run once the session lock is released.
type afterUnlock []func()

func (a *afterUnlock) add(fn func()) {
	*a = append(*a, fn)
}

func (a *afterUnlock) run() {
	for _, fn := range *a {
		fn()
	}
}

func (m *Manager) publish(sess *Session, app *application.Application) {
	channelID := m.cfg.EffectivePublishChannelID()
	if err := m.send(channelID, publicationMessage(app, m.today())); err != nil {
		sessionLogger(sess).Error("failed to publish approval", "error", err, "channel_id", channelID)
		sess.logf(m.now(), "公示送信エラー: %v", err)
	}
}

func (m *Manager) recoverHandler(sess *Session, onPanic func()) {
	r := recover()
	if r == nil {
		return
	}
	sessionLogger(sess).Error("panic while handling session event", "panic", r, "stack", string(debug.Stack()))
	sess.logf(m.now(), "システムエラー: %v", r)
	onPanic()
}

func (m *Manager) send(channelID string, msg discord.Message) error {
	return m.discord.SendChannelComplex(channelID, msg)
}

func (m *Manager) notifyThread(channelID, content string) {
	if err := m.discord.SendChannelMessage(channelID, content); err != nil {
		slog.Error("failed to send channel message", "error", err, "channel_id", channelID)
	}
}

// update answers the interaction by replacing its message. On failure the applicant
// gets the generic error notice and false is returned.
func (m *Manager) update(sess *Session, responder *discord.Responder, msg discord.Message) bool {
	if responder == nil {
		return true
	}
	if err := responder.Update(msg); err != nil {
		sessionLogger(sess).Error("failed to update interaction", "error", err)
		sess.logf(m.now(), "応答送信エラー: %v", err)
		m.notice(responder, messageGenericError)
		return false
	}
	return true
}

func (m *Manager) complete(sess *Session, responder *discord.Responder, msg discord.Message) {
	if responder == nil {
		return
	}
	if err := responder.Complete(msg); err != nil {
		sessionLogger(sess).Error("failed to complete interaction", "error", err)
	}
}

func (m *Manager) notice(responder *discord.Responder, content string) {
	if responder == nil {
		return
	}
	if err := responder.Notice(content); err != nil && !errors.Is(err, discord.ErrInteractionCompleted) {
		slog.Warn("failed to send interaction notice", "error", err)
	}
}

func (m *Manager) today() string {
	return m.now().In(m.loc).Format("2006-01-02")
}

func editionFromValues(values []string) (verifier.Edition, bool) {
	if len(values) == 0 {
		return "", false
	}
	return verifier.ParseEdition(values[0])
}
