package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxseedlab/nyukoku/internal/application"
	"github.com/foxseedlab/nyukoku/internal/config"
	"github.com/foxseedlab/nyukoku/internal/confirmation"
	"github.com/foxseedlab/nyukoku/internal/denylist"
	"github.com/foxseedlab/nyukoku/internal/discord"
	"github.com/foxseedlab/nyukoku/internal/inspection"
	"github.com/foxseedlab/nyukoku/internal/repository"
	"github.com/foxseedlab/nyukoku/internal/verifier"
	"github.com/foxseedlab/nyukoku/internal/webhook"
)

const (
	testGuildID   = "guild-1"
	testCategory  = "ticket-category"
	testThreadID  = "thread-1"
	testApplicant = "applicant-1"
	testLogChan   = "log-channel"
	testPubChan   = "publish-channel"
)

type channelMessage struct {
	channelID string
	msg       discord.Message
}

type mockDiscordClient struct {
	mu          sync.Mutex
	sent        []channelMessage
	files       []discord.FileMessage
	dms         []channelMessage
	panicOnSend bool
}

func (m *mockDiscordClient) Connect(context.Context) error { return nil }
func (m *mockDiscordClient) Close() error                  { return nil }
func (m *mockDiscordClient) SendChannelMessage(channelID, content string) error {
	return m.SendChannelComplex(channelID, discord.Message{Content: content})
}
func (m *mockDiscordClient) SendChannelComplex(channelID string, msg discord.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOnSend {
		m.panicOnSend = false
		panic("unexpected payload")
	}
	m.sent = append(m.sent, channelMessage{channelID: channelID, msg: msg})
	return nil
}
func (m *mockDiscordClient) SendChannelMessageWithFile(msg discord.FileMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = append(m.files, msg)
	return nil
}
func (m *mockDiscordClient) SendDirectMessage(userID string, msg discord.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dms = append(m.dms, channelMessage{channelID: userID, msg: msg})
	return nil
}
func (m *mockDiscordClient) RegisterMessageHandler(func(discord.MessageEvent))     {}
func (m *mockDiscordClient) RegisterComponentHandler(func(discord.ComponentEvent)) {}
func (m *mockDiscordClient) GetBotUserID() (string, error)                         { return "bot-self", nil }
func (m *mockDiscordClient) Run() error                                            { return nil }

func (m *mockDiscordClient) sentTo(channelID string) []discord.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []discord.Message
	for _, s := range m.sent {
		if s.channelID == channelID {
			out = append(out, s.msg)
		}
	}
	return out
}

func (m *mockDiscordClient) lastTo(channelID string) discord.Message {
	msgs := m.sentTo(channelID)
	if len(msgs) == 0 {
		return discord.Message{}
	}
	return msgs[len(msgs)-1]
}

type mockRepository struct {
	mu     sync.Mutex
	audits []repository.SaveAuditInput
}

func (m *mockRepository) SaveAudit(_ context.Context, input repository.SaveAuditInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, input)
	return nil
}

func (m *mockRepository) ListAuditsBySessionID(context.Context, string) ([]repository.AuditRecord, error) {
	return nil, nil
}

func (m *mockRepository) outcomes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.audits))
	for _, a := range m.audits {
		out = append(out, a.Outcome)
	}
	return out
}

type mockWebhook struct {
	mu       sync.Mutex
	payloads []webhook.AuditWebhookPayload
}

func (m *mockWebhook) SendAudit(_ context.Context, payload webhook.AuditWebhookPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	return nil
}

type inspectorFunc func(ctx context.Context, sub inspection.Submission) (inspection.Verdict, error)

func (f inspectorFunc) Run(ctx context.Context, sub inspection.Submission) (inspection.Verdict, error) {
	return f(ctx, sub)
}

type response struct {
	kind      string
	msg       discord.Message
	ephemeral bool
}

type responseRecorder struct {
	mu        sync.Mutex
	responses []response
}

func (r *responseRecorder) add(kind string, msg discord.Message, ephemeral bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, response{kind: kind, msg: msg, ephemeral: ephemeral})
	return nil
}

func (r *responseRecorder) responder() *discord.Responder {
	return discord.NewResponder(discord.ResponderFuncs{
		UpdateSource: func(msg discord.Message) error { return r.add("update", msg, false) },
		Defer:        func() error { return r.add("defer", discord.Message{}, false) },
		Reply:        func(msg discord.Message, ephemeral bool) error { return r.add("reply", msg, ephemeral) },
		EditReply:    func(msg discord.Message) error { return r.add("edit", msg, false) },
		FollowUp:     func(msg discord.Message, ephemeral bool) error { return r.add("followup", msg, ephemeral) },
	})
}

func (r *responseRecorder) last() response {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.responses) == 0 {
		return response{}
	}
	return r.responses[len(r.responses)-1]
}

type harness struct {
	manager   *Manager
	discord   *mockDiscordClient
	repo      *mockRepository
	webhook   *mockWebhook
	inspected int
}

func testConfig() *config.Config {
	return &config.Config{
		DiscordGuildID:     testGuildID,
		TicketCategoryID:   testCategory,
		LogChannelID:       testLogChan,
		PublishChannelID:   testPubChan,
		SessionTrigger:     "ID:CAS",
		StatusKeyword:      "!status",
		AuditTimezone:      "UTC",
		InspectionTimeout:  time.Second,
		IdleThreshold:      10 * time.Minute,
		SweepInterval:      time.Minute,
		SponsorWaitTimeout: time.Hour,
		MaxStayDays:        31,
	}
}

func newHarness(t *testing.T, cfg *config.Config, inspector inspection.Inspector) *harness {
	t.Helper()
	h := &harness{
		discord: &mockDiscordClient{},
		repo:    &mockRepository{},
		webhook: &mockWebhook{},
	}
	counted := inspectorFunc(func(ctx context.Context, sub inspection.Submission) (inspection.Verdict, error) {
		h.inspected++
		return inspector.Run(ctx, sub)
	})
	rounds := confirmation.NewRounds(h.discord, cfg.SponsorWaitTimeout, nil)
	h.manager = NewManager(cfg, NewStore(time.UTC), rounds, counted, h.discord, h.repo, h.webhook, nil)
	return h
}

func approvedApplication() *application.Application {
	return &application.Application{
		Identity:    "steve",
		Nationality: "Ardent",
		Purpose:     "観光",
		Start:       "2026-10-18 12:00",
		End:         "2026-10-25 12:00",
	}
}

func approveAll() inspection.Inspector {
	return inspectorFunc(func(context.Context, inspection.Submission) (inspection.Verdict, error) {
		return inspection.Verdict{Approved: true, Application: approvedApplication(), Trace: []string{"承認"}}, nil
	})
}

func (h *harness) say(text string) {
	h.manager.HandleMessage(discord.MessageEvent{
		GuildID:         testGuildID,
		ChannelID:       testThreadID,
		ParentChannelID: testCategory,
		AuthorID:        testApplicant,
		Content:         text,
	})
}

func (h *harness) trigger() *Session {
	h.manager.HandleMessage(discord.MessageEvent{
		GuildID:         testGuildID,
		ChannelID:       testThreadID,
		ParentChannelID: testCategory,
		AuthorID:        testApplicant,
		Content:         "<@bot-self> ID:CAS",
		MentionsBot:     true,
	})
	sess, _ := h.manager.store.FindByParticipant(testThreadID, testApplicant)
	return sess
}

func (h *harness) click(action, ref, userID string, values ...string) *responseRecorder {
	rec := &responseRecorder{}
	h.manager.HandleComponent(discord.ComponentEvent{
		GuildID:   testGuildID,
		ChannelID: testThreadID,
		UserID:    userID,
		CustomID:  discord.CustomID(action, ref),
		Values:    values,
		Responder: rec.responder(),
	})
	return rec
}

// walkToConfirm drives a fresh session up to the confirm step.
func (h *harness) walkToConfirm(t *testing.T, sponsors string) *Session {
	t.Helper()
	sess := h.trigger()
	require.NotNil(t, sess)
	h.click(actionStart, sess.ID, testApplicant)
	h.click(actionEdition, sess.ID, testApplicant, "java")
	h.say("steve")
	h.say("Ardent")
	h.say("観光で7日間")
	h.say("なし")
	h.say(sponsors)
	require.Equal(t, StateConfirmPending, stateOf(sess))
	return sess
}

func stateOf(sess *Session) State {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.State
}

func isLive(h *harness, sess *Session) bool {
	_, ok := h.manager.store.Get(sess.ID)
	return ok
}

func TestWorkflow_HappyPathApproves(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.walkToConfirm(t, "なし")

	assert.Equal(t, Answers{
		Edition:     verifier.EditionJava,
		Identity:    "steve",
		Nationality: "Ardent",
		Period:      "観光で7日間",
	}, sess.Answers)
	assert.Contains(t, h.discord.lastTo(testThreadID).Content, messageConfirmPrompt)
	assert.Equal(t, 0, h.inspected)

	rec := h.click(actionConfirm, sess.ID, testApplicant)

	assert.Equal(t, 1, h.inspected)
	last := rec.last()
	assert.Equal(t, "edit", last.kind)
	require.Len(t, last.msg.Embeds, 1)
	assert.Equal(t, "一時入国審査結果", last.msg.Embeds[0].Title)

	published := h.discord.sentTo(testPubChan)
	require.Len(t, published, 1)
	assert.Equal(t, "【一時入国審査に係る入国者の公示】", published[0].Embeds[0].Title)

	assert.Equal(t, StateApproved, stateOf(sess))
	assert.False(t, isLive(h, sess))
	assert.Equal(t, []string{string(StateApproved)}, h.repo.outcomes())
	require.Len(t, h.discord.files, 1)
	assert.Equal(t, testLogChan, h.discord.files[0].ChannelID)
	assert.Contains(t, h.discord.files[0].Content, "承認")
	assert.Contains(t, string(h.discord.files[0].FileBody), "確定ボタン押下")
	require.Len(t, h.webhook.payloads, 1)
	assert.Equal(t, "steve", h.webhook.payloads[0].Identity)
}

func TestWorkflow_SubmissionCarriesAnswers(t *testing.T) {
	var got inspection.Submission
	h := newHarness(t, testConfig(), inspectorFunc(func(_ context.Context, sub inspection.Submission) (inspection.Verdict, error) {
		got = sub
		return inspection.Verdict{Reason: "却下"}, nil
	}))
	sess := h.trigger()
	h.click(actionStart, sess.ID, testApplicant)
	h.click(actionEdition, sess.ID, testApplicant, "bedrock")
	h.say("steve")
	h.say("Ardent")
	h.say("観光で7日間")
	h.say("alex, BE_bob")
	h.say("taro")
	h.click(actionConfirm, sess.ID, testApplicant)

	assert.Equal(t, verifier.EditionBedrock, got.Edition)
	assert.Contains(t, got.Text, "MCID: steve")
	assert.Contains(t, got.Text, "同行者: alex, BE_bob")
	assert.Contains(t, got.Text, "合流者: taro")
}

func TestWorkflow_TextOutsideInputStepIsIgnored(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.trigger()
	h.click(actionStart, sess.ID, testApplicant)
	sentBefore := len(h.discord.sentTo(testThreadID))

	h.say("steve")
	h.say("steve")

	assert.Equal(t, StateEditionSelect, stateOf(sess))
	assert.Equal(t, Answers{}, sess.Answers)
	assert.Len(t, h.discord.sentTo(testThreadID), sentBefore)
}

func TestWorkflow_RepeatedTextAtConfirmDoesNotMutate(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.walkToConfirm(t, "なし")
	before := sess.Answers

	h.say("taro")

	assert.Equal(t, StateConfirmPending, stateOf(sess))
	assert.Equal(t, before, sess.Answers)
	assert.Equal(t, 0, h.inspected)
}

func TestWorkflow_EmptyTextRepromptsSameStep(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.trigger()
	h.click(actionStart, sess.ID, testApplicant)
	h.click(actionEdition, sess.ID, testApplicant, "java")

	h.say("   ")

	assert.Equal(t, StateIdentityInput, stateOf(sess))
	assert.Equal(t, messageIdentityPrompt, h.discord.lastTo(testThreadID).Content)
}

func TestWorkflow_ActionNotAcceptedInStateIsAnsweredWithoutChange(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.trigger()

	rec := h.click(actionConfirm, sess.ID, testApplicant)

	assert.Equal(t, StateStart, stateOf(sess))
	assert.Equal(t, response{kind: "reply", msg: discord.Message{Content: messageUnsupportedAction}, ephemeral: true}, rec.last())
	assert.Equal(t, 0, h.inspected)
}

func TestWorkflow_InvalidEditionSelectionIsRejected(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.trigger()
	h.click(actionStart, sess.ID, testApplicant)

	h.click(actionEdition, sess.ID, testApplicant, "pocket")

	assert.Equal(t, StateEditionSelect, stateOf(sess))
	assert.Equal(t, verifier.Edition(""), sess.Answers.Edition)
}

func TestWorkflow_OnlyApplicantCanOperate(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.trigger()

	rec := h.click(actionStart, sess.ID, "someone-else")

	assert.Equal(t, StateStart, stateOf(sess))
	assert.Equal(t, messageNotOwner, rec.last().msg.Content)
}

func TestWorkflow_EditReturnsToEditionKeepingAnswers(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.walkToConfirm(t, "なし")

	rec := h.click(actionEdit, sess.ID, testApplicant)

	assert.Equal(t, StateEditionSelect, stateOf(sess))
	assert.Equal(t, "update", rec.last().kind)
	assert.Equal(t, "steve", sess.Answers.Identity)

	h.click(actionEdition, sess.ID, testApplicant, "java")
	h.say("alex")
	assert.Equal(t, "alex", sess.Answers.Identity)
	assert.Equal(t, "Ardent", sess.Answers.Nationality)
}

func TestWorkflow_CancelEndsSession(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.trigger()
	h.click(actionStart, sess.ID, testApplicant)

	rec := h.click(actionCancel, sess.ID, testApplicant)

	assert.Equal(t, messageCancelled, rec.last().msg.Content)
	assert.Equal(t, StateCancelled, stateOf(sess))
	assert.False(t, isLive(h, sess))
	assert.Equal(t, []string{string(StateCancelled)}, h.repo.outcomes())

	rec = h.click(actionStart, sess.ID, testApplicant)
	assert.Equal(t, messageSessionNotFound, rec.last().msg.Content)
}

func TestWorkflow_DuplicateTriggerKeepsOneSession(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	first := h.trigger()
	second := h.trigger()

	assert.Same(t, first, second)
	assert.Equal(t, 1, h.manager.OpenSessions())
	assert.Equal(t, messageAlreadyInProgress, h.discord.lastTo(testThreadID).Content)
}

func TestWorkflow_MessagesOutsideTicketCategoryAreIgnored(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())

	h.manager.HandleMessage(discord.MessageEvent{
		GuildID: testGuildID, ChannelID: "general", ParentChannelID: "other", AuthorID: testApplicant,
		Content: "<@bot-self> ID:CAS", MentionsBot: true,
	})
	h.manager.HandleMessage(discord.MessageEvent{
		GuildID: "other-guild", ChannelID: testThreadID, ParentChannelID: testCategory, AuthorID: testApplicant,
		Content: "<@bot-self> ID:CAS", MentionsBot: true,
	})

	assert.Equal(t, 0, h.manager.OpenSessions())
}

func TestWorkflow_StatusReport(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	h.trigger()

	h.manager.HandleMessage(discord.MessageEvent{GuildID: testGuildID, ChannelID: "admin", AuthorID: "admin-1", Content: "!status"})

	report := h.discord.lastTo("admin")
	require.Len(t, report.Embeds, 1)
	assert.Equal(t, "1", report.Embeds[0].Fields[0].Value)
	assert.Equal(t, "0", report.Embeds[0].Fields[1].Value)
}

func TestWorkflow_StatusReportRepliesToAdminMessage(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	h.trigger()
	var replies []discord.Message

	h.manager.HandleMessage(discord.MessageEvent{
		GuildID:   testGuildID,
		ChannelID: "admin",
		AuthorID:  "admin-1",
		Content:   "!status",
		Reply: func(msg discord.Message) error {
			replies = append(replies, msg)
			return nil
		},
	})

	require.Len(t, replies, 1)
	assert.Equal(t, "1", replies[0].Embeds[0].Fields[0].Value)
	assert.Empty(t, h.discord.sentTo("admin"))
}

func TestWorkflow_RejectionEndsSession(t *testing.T) {
	h := newHarness(t, testConfig(), inspectorFunc(func(context.Context, inspection.Submission) (inspection.Verdict, error) {
		return inspection.Verdict{Reason: "申請情報に不足があります。全項目を入力してください。", Check: inspection.CheckRequiredFields}, nil
	}))
	sess := h.walkToConfirm(t, "なし")

	rec := h.click(actionConfirm, sess.ID, testApplicant)

	assert.Equal(t, "申請情報に不足があります。全項目を入力してください。", rec.last().msg.Content)
	assert.Equal(t, StateRejected, stateOf(sess))
	assert.Empty(t, h.discord.sentTo(testPubChan))
	assert.Equal(t, []string{string(StateRejected)}, h.repo.outcomes())
}

func TestWorkflow_ExternalErrorKeepsConfirmStep(t *testing.T) {
	h := newHarness(t, testConfig(), inspectorFunc(func(context.Context, inspection.Submission) (inspection.Verdict, error) {
		return inspection.Verdict{}, errors.Join(inspection.ErrExternalService, errors.New("connection refused"))
	}))
	sess := h.walkToConfirm(t, "なし")

	rec := h.click(actionConfirm, sess.ID, testApplicant)

	assert.Equal(t, messageInspectionFailed, rec.last().msg.Content)
	assert.Len(t, rec.last().msg.Buttons, 3)
	assert.Equal(t, StateConfirmPending, stateOf(sess))
	assert.True(t, isLive(h, sess))
	assert.Empty(t, h.repo.outcomes())
}

func TestWorkflow_InspectionPanicKeepsConfirmStep(t *testing.T) {
	h := newHarness(t, testConfig(), inspectorFunc(func(context.Context, inspection.Submission) (inspection.Verdict, error) {
		panic("nil map")
	}))
	sess := h.walkToConfirm(t, "なし")

	rec := h.click(actionConfirm, sess.ID, testApplicant)

	assert.Equal(t, messageInspectionFailed, rec.last().msg.Content)
	assert.Equal(t, StateConfirmPending, stateOf(sess))
}

func TestWorkflow_TimeoutWinsAndLateResultIsDiscarded(t *testing.T) {
	cfg := testConfig()
	cfg.InspectionTimeout = 20 * time.Millisecond
	release := make(chan struct{})
	finished := make(chan struct{})
	h := newHarness(t, cfg, inspectorFunc(func(context.Context, inspection.Submission) (inspection.Verdict, error) {
		defer close(finished)
		<-release
		return inspection.Verdict{Approved: true, Application: approvedApplication()}, nil
	}))
	sess := h.walkToConfirm(t, "なし")

	rec := h.click(actionConfirm, sess.ID, testApplicant)

	assert.Equal(t, messageTimedOut, rec.last().msg.Content)
	assert.Equal(t, StateTimedOut, stateOf(sess))
	assert.False(t, isLive(h, sess))

	close(release)
	<-finished
	time.Sleep(10 * time.Millisecond)

	assert.Empty(t, h.discord.sentTo(testPubChan))
	assert.Equal(t, []string{string(StateTimedOut)}, h.repo.outcomes())
	assert.Equal(t, messageTimedOut, rec.last().msg.Content)
}

func TestWorkflow_DoubleConfirmWhileInspectingIsIgnored(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, testConfig(), inspectorFunc(func(context.Context, inspection.Submission) (inspection.Verdict, error) {
		close(started)
		<-release
		return inspection.Verdict{Approved: true, Application: approvedApplication()}, nil
	}))
	sess := h.walkToConfirm(t, "なし")

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.click(actionConfirm, sess.ID, testApplicant)
	}()
	<-started

	rec := h.click(actionConfirm, sess.ID, testApplicant)
	assert.Equal(t, messageInspectionBusy, rec.last().msg.Content)

	close(release)
	<-done
	assert.Equal(t, []string{string(StateApproved)}, h.repo.outcomes())
}

func TestWorkflow_PanicWhileHandlingTextKeepsState(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.trigger()
	h.click(actionStart, sess.ID, testApplicant)
	h.click(actionEdition, sess.ID, testApplicant, "java")

	h.discord.panicOnSend = true
	h.say("steve")

	assert.Equal(t, StateIdentityInput, stateOf(sess))
	assert.Empty(t, sess.Answers.Identity)
	assert.Equal(t, messageGenericError, h.discord.lastTo(testThreadID).Content)
	assert.Contains(t, strings.Join(sess.AuditLog, "\n"), "システムエラー")

	h.say("steve")
	assert.Equal(t, StateNationalityInput, stateOf(sess))
}

func pendingSponsors(ids ...string) inspection.Inspector {
	return inspectorFunc(func(context.Context, inspection.Submission) (inspection.Verdict, error) {
		app := approvedApplication()
		app.Sponsors = []string{"taro"}
		app.SponsorIDs = ids
		return inspection.Verdict{Application: app, PendingSponsorIDs: ids}, nil
	})
}

func TestWorkflow_SponsorApprovalFinalizes(t *testing.T) {
	h := newHarness(t, testConfig(), pendingSponsors("sponsor-1"))
	sess := h.walkToConfirm(t, "taro")

	rec := h.click(actionConfirm, sess.ID, testApplicant)

	assert.Equal(t, messageSponsorWait, rec.last().msg.Content)
	assert.Equal(t, StateSponsorWait, stateOf(sess))
	require.Len(t, h.discord.dms, 1)
	dm := h.discord.dms[0]
	assert.Equal(t, "sponsor-1", dm.channelID)
	require.Len(t, dm.msg.Buttons, 2)

	_, roundID, ok := discord.ParseCustomID(dm.msg.Buttons[0].CustomID)
	require.True(t, ok)
	sponsorRec := h.click(confirmation.ActionYes, roundID, "sponsor-1")

	assert.Contains(t, sponsorRec.last().msg.Content, messageSponsorThanks)
	assert.Equal(t, StateApproved, stateOf(sess))
	assert.False(t, isLive(h, sess))
	thread := h.discord.lastTo(testThreadID)
	require.Len(t, thread.Embeds, 1)
	assert.Equal(t, "一時入国審査結果", thread.Embeds[0].Title)
	assert.Len(t, h.discord.sentTo(testPubChan), 1)
	assert.Equal(t, []string{string(StateApproved)}, h.repo.outcomes())
	assert.Equal(t, 0, h.manager.OpenRounds())
}

func TestWorkflow_SponsorNoRejectsBeforeOthersAnswer(t *testing.T) {
	h := newHarness(t, testConfig(), pendingSponsors("sponsor-1", "sponsor-2"))
	sess := h.walkToConfirm(t, "taro, hanako")
	h.click(actionConfirm, sess.ID, testApplicant)
	require.Len(t, h.discord.dms, 2)
	_, roundID, _ := discord.ParseCustomID(h.discord.dms[0].msg.Buttons[0].CustomID)

	h.click(confirmation.ActionNo, roundID, "sponsor-2")

	assert.Equal(t, StateRejected, stateOf(sess))
	assert.Equal(t, messageSponsorRejected, h.discord.lastTo(testThreadID).Content)
	assert.Empty(t, h.discord.sentTo(testPubChan))

	late := h.click(confirmation.ActionYes, roundID, "sponsor-1")
	assert.Equal(t, messageSponsorInvalid, late.last().msg.Content)
	assert.Equal(t, []string{string(StateRejected)}, h.repo.outcomes())
}

func TestWorkflow_SponsorWaitIsExemptFromIdleSweepButExpires(t *testing.T) {
	h := newHarness(t, testConfig(), pendingSponsors("sponsor-1"))
	sess := h.walkToConfirm(t, "taro")
	h.click(actionConfirm, sess.ID, testApplicant)

	h.manager.Tick(context.Background(), time.Now().Add(30*time.Minute))
	assert.Equal(t, StateSponsorWait, stateOf(sess))
	assert.True(t, isLive(h, sess))

	h.manager.Tick(context.Background(), time.Now().Add(2*time.Hour))
	assert.Equal(t, StateRejected, stateOf(sess))
	assert.Equal(t, messageSponsorExpired, h.discord.lastTo(testThreadID).Content)
	assert.Equal(t, []string{string(StateRejected)}, h.repo.outcomes())
}

func TestWorkflow_IdleSweepEvictsWithSingleAudit(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.trigger()
	h.click(actionStart, sess.ID, testApplicant)

	h.manager.Tick(context.Background(), time.Now().Add(11*time.Minute))
	h.manager.Tick(context.Background(), time.Now().Add(12*time.Minute))

	assert.Equal(t, StateTimedOut, stateOf(sess))
	assert.Equal(t, []string{string(StateTimedOut)}, h.repo.outcomes())
	assert.Equal(t, messageIdleTimeout, h.discord.lastTo(testThreadID).Content)

	rec := h.click(actionEdition, sess.ID, testApplicant, "java")
	assert.Equal(t, messageSessionNotFound, rec.last().msg.Content)
}

// Scenario: a prefixed identity is looked up as bedrock and the applicant is told to
// check the spelling when it does not exist.
func TestWorkflow_PrefixedIdentityNotFoundRejects(t *testing.T) {
	ver := &scenarioVerifier{}
	pipeline := inspection.NewPipeline(inspection.Params{
		Extractor: scenarioExtractor{app: &application.Application{
			Identity: "BE_steve", Nationality: "Ardent", Purpose: "観光",
			Start: "2026-10-18 12:00", End: "2026-10-20 12:00",
		}},
		DenyList:    scenarioDenyList{},
		Verifier:    ver,
		Registry:    scenarioRegistry{},
		MaxStayDays: 31,
	})
	h := newHarness(t, testConfig(), pipeline)
	sess := h.walkToConfirm(t, "なし")

	rec := h.click(actionConfirm, sess.ID, testApplicant)

	assert.Contains(t, rec.last().msg.Content, "申請者MCID「BE_steve」のアカウントチェックが出来ませんでした")
	assert.Equal(t, StateRejected, stateOf(sess))
	assert.Equal(t, []verifier.Edition{verifier.EditionBedrock}, ver.editions)
}

type scenarioExtractor struct{ app *application.Application }

func (s scenarioExtractor) Extract(context.Context, string) (*application.Application, error) {
	cp := *s.app
	return &cp, nil
}

type scenarioDenyList struct{}

func (scenarioDenyList) IsListed(context.Context, denylist.Category, string) (bool, error) {
	return false, nil
}

type scenarioVerifier struct{ editions []verifier.Edition }

func (s *scenarioVerifier) Exists(_ context.Context, edition verifier.Edition, _ string) bool {
	s.editions = append(s.editions, edition)
	return false
}

type scenarioRegistry struct{}

func (scenarioRegistry) Match(context.Context, []string) (map[string]string, error) {
	return map[string]string{}, nil
}

// lockCheckingWebhook records whether the session lock was free while auditing.
type lockCheckingWebhook struct {
	sess     *Session
	unlocked []bool
}

func (w *lockCheckingWebhook) SendAudit(context.Context, webhook.AuditWebhookPayload) error {
	free := w.sess.mu.TryLock()
	if free {
		w.sess.mu.Unlock()
	}
	w.unlocked = append(w.unlocked, free)
	return nil
}

// lockCheckingDiscord records whether the session lock was free while prompting sponsors.
type lockCheckingDiscord struct {
	*mockDiscordClient
	sess     *Session
	unlocked []bool
}

func (d *lockCheckingDiscord) SendDirectMessage(userID string, msg discord.Message) error {
	free := d.sess.mu.TryLock()
	if free {
		d.sess.mu.Unlock()
	}
	d.unlocked = append(d.unlocked, free)
	return d.mockDiscordClient.SendDirectMessage(userID, msg)
}

func TestWorkflow_AuditFlushRunsAfterSessionUnlock(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	sess := h.walkToConfirm(t, "なし")
	wh := &lockCheckingWebhook{sess: sess}
	h.manager.webhook = wh

	h.click(actionConfirm, sess.ID, testApplicant)

	assert.Equal(t, []bool{true}, wh.unlocked)
	assert.Equal(t, []string{string(StateApproved)}, h.repo.outcomes())
}

func TestWorkflow_SponsorPromptsRunAfterSessionUnlock(t *testing.T) {
	cfg := testConfig()
	dc := &lockCheckingDiscord{mockDiscordClient: &mockDiscordClient{}}
	rounds := confirmation.NewRounds(dc, cfg.SponsorWaitTimeout, nil)
	h := &harness{discord: dc.mockDiscordClient, repo: &mockRepository{}, webhook: &mockWebhook{}}
	h.manager = NewManager(cfg, NewStore(time.UTC), rounds, pendingSponsors("sponsor-1", "sponsor-2"), dc, h.repo, h.webhook, nil)
	sess := h.walkToConfirm(t, "taro, hanako")
	dc.sess = sess

	h.click(actionConfirm, sess.ID, testApplicant)

	assert.Equal(t, StateSponsorWait, stateOf(sess))
	assert.Equal(t, []bool{true, true}, dc.unlocked)
	assert.Len(t, h.discord.dms, 2)
}

// barrierWebhook blocks each audit until n audits are in flight at once.
type barrierWebhook struct {
	mu      sync.Mutex
	n       int
	arrived int
	all     chan struct{}
	met     []bool
}

func (b *barrierWebhook) SendAudit(context.Context, webhook.AuditWebhookPayload) error {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.n {
		close(b.all)
	}
	b.mu.Unlock()

	met := true
	select {
	case <-b.all:
	case <-time.After(time.Second):
		met = false
	}
	b.mu.Lock()
	b.met = append(b.met, met)
	b.mu.Unlock()
	return nil
}

func TestWorkflow_IdleSweepFlushesSessionsConcurrently(t *testing.T) {
	h := newHarness(t, testConfig(), approveAll())
	wh := &barrierWebhook{n: 2, all: make(chan struct{})}
	h.manager.webhook = wh
	h.manager.OpenSession(context.Background(), "thread-a", "applicant-a")
	h.manager.OpenSession(context.Background(), "thread-b", "applicant-b")

	h.manager.Tick(context.Background(), time.Now().Add(11*time.Minute))

	assert.Equal(t, []bool{true, true}, wh.met)
	assert.ElementsMatch(t, []string{string(StateTimedOut), string(StateTimedOut)}, h.repo.outcomes())
	assert.Equal(t, messageIdleTimeout, h.discord.lastTo("thread-a").Content)
	assert.Equal(t, messageIdleTimeout, h.discord.lastTo("thread-b").Content)
}
