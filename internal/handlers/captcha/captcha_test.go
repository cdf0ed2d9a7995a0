package captcha

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngguard/internal/admins"
	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/bot/bottest"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/event"
)

const (
	testChatID  = -100555
	waitTimeout = 3 * time.Second
)

type fakeCAS struct {
	banned map[int64]bool
	err    error
}

func (f *fakeCAS) IsBanned(_ context.Context, userID int64) (bool, error) {
	return f.banned[userID], f.err
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) outcomes(eventType string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []string
	for _, e := range r.events {
		if e.Type == eventType {
			res = append(res, e.Outcome)
		}
	}
	return res
}

type fixture struct {
	client *bottest.Client
	s      bot.Service
	engine *Engine
	cas    *fakeCAS
	events *recorder
	chat   api.Chat
	admin  *api.User
	member *api.User
	other  *api.User
}

func newFixture(t *testing.T, configure func(s *db.CaptchaSettings)) *fixture {
	t.Helper()
	client := bottest.New()
	f := &fixture{
		client: client,
		s:      bottest.NewService(t, client, bot.ServiceOptions{CaptchaEnabledByDefault: true}),
		cas:    &fakeCAS{banned: map[int64]bool{}},
		events: &recorder{},
		chat:   bottest.Group(testChatID),
		admin:  &api.User{ID: 1, FirstName: "Ann"},
		member: &api.User{ID: 2, FirstName: "Bob"},
		other:  &api.User{ID: 3, FirstName: "Eve"},
	}
	client.AddAdmin(testChatID, *f.admin)
	f.engine = NewEngine(f.s, admins.NewCache(client, nil, time.Minute), f.cas, f.events, Options{})

	ctx := context.Background()
	settings, err := f.s.GetCaptchaSettings(ctx, testChatID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if configure != nil {
		configure(settings)
		if err := f.s.GetDB().SetCaptchaSettings(ctx, settings); err != nil {
			t.Fatalf("set settings: %v", err)
		}
	}
	if err := f.engine.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = f.engine.Stop(context.Background()) })
	return f
}

func (f *fixture) handle(t *testing.T, u *api.Update) bool {
	t.Helper()
	chat, user := bot.ResolveChatAndUser(u)
	proceed, err := f.engine.Handle(context.Background(), u, chat, user)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	return proceed
}

func (f *fixture) join(t *testing.T, users ...*api.User) *api.Message {
	t.Helper()
	msg := bottest.Message(f.chat, users[0], "")
	for _, u := range users {
		msg.NewChatMembers = append(msg.NewChatMembers, *u)
	}
	f.handle(t, &api.Update{Message: msg})
	return msg
}

func (f *fixture) wait() {
	f.engine.wg.Wait()
}

// challengeMessage waits until a message with captcha buttons is listening for presses.
func (f *fixture) challengeMessage(t *testing.T, chatID int64) api.Message {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		for _, msg := range f.client.Messages() {
			if msg.Chat.ID == chatID && f.engine.hub.subscribed(chatID, msg.MessageID) {
				return msg
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no challenge in chat %d", chatID)
	return api.Message{}
}

func (f *fixture) press(t *testing.T, msg api.Message, from *api.User, data string) {
	t.Helper()
	m := msg
	if proceed := f.handle(t, &api.Update{CallbackQuery: bottest.Callback(&m, from, data)}); proceed {
		t.Fatalf("captcha press must stop the chain")
	}
}

func (f *fixture) kicked(userID int64) bool {
	for _, id := range f.client.Bans() {
		if id == userID {
			return true
		}
	}
	return false
}

func (f *fixture) unrestricted(userID int64) bool {
	return f.client.CountRequests(func(c api.Chattable) bool {
		cfg, ok := c.(api.RestrictChatMemberConfig)
		return ok && cfg.UserID == userID && cfg.Permissions != nil && cfg.Permissions.CanSendMessages
	}) > 0
}

func (f *fixture) sentText(substr string) bool {
	for _, text := range f.client.Texts() {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

func (f *fixture) sentTo(chatID int64, substr string) bool {
	for _, c := range f.client.Sent() {
		if cfg, ok := c.(api.MessageConfig); ok && cfg.ChatID == chatID && strings.Contains(cfg.Text, substr) {
			return true
		}
	}
	return false
}

func (f *fixture) edits(chatID int64) []string {
	var texts []string
	for _, c := range f.client.Requests() {
		if cfg, ok := c.(api.EditMessageTextConfig); ok && cfg.ChatID == chatID {
			texts = append(texts, cfg.Text)
		}
	}
	return texts
}

func buttonData(msg api.Message) []string {
	var data []string
	if msg.ReplyMarkup == nil {
		return nil
	}
	for _, row := range msg.ReplyMarkup.InlineKeyboard {
		for _, b := range row {
			if b.CallbackData != nil {
				data = append(data, *b.CallbackData)
			}
		}
	}
	return data
}

// evalExpression computes the bold expression of an expression challenge text.
func evalExpression(t *testing.T, text string) int {
	t.Helper()
	start := strings.LastIndex(text, "<b>")
	end := strings.LastIndex(text, "</b>")
	if start < 0 || end < start {
		t.Fatalf("no expression in %q", text)
	}
	tokens := strings.Fields(text[start+3 : end])
	result, err := strconv.Atoi(tokens[0])
	if err != nil {
		t.Fatalf("bad expression %q", text)
	}
	for i := 1; i+1 < len(tokens); i += 2 {
		operand, err := strconv.Atoi(tokens[i+1])
		if err != nil {
			t.Fatalf("bad expression %q", text)
		}
		if tokens[i] == "+" {
			result += operand
		} else {
			result -= operand
		}
	}
	return result
}

func TestComplexityOrdering(t *testing.T) {
	t.Parallel()

	simple := ComplexityOf(db.NewProviderConfig(db.ProviderSimple))
	slot := ComplexityOf(db.NewProviderConfig(db.ProviderSlotMachine))
	expr := ComplexityOf(db.NewProviderConfig(db.ProviderExpression))
	if !(simple < slot && slot == expr) {
		t.Fatalf("unexpected ordering: simple=%d slot=%d expression=%d", simple, slot, expr)
	}

	hard := db.NewProviderConfig(db.ProviderExpression)
	hard.Operations, hard.Answers, hard.MaxPerNumber, hard.Attempts = 10, 10, 1000, 1
	if got := ComplexityOf(hard); got != ComplexityHard {
		t.Fatalf("hardest expression: got %d, want clamp to %d", got, ComplexityHard)
	}
	easy := db.NewProviderConfig(db.ProviderExpression)
	easy.Operations, easy.Answers, easy.MaxPerNumber, easy.Attempts = 1, 2, 1, 10
	if got := ComplexityOf(easy); got != ComplexityEasy {
		t.Fatalf("easiest expression: got %d, want clamp to %d", got, ComplexityEasy)
	}
}

func TestReelsOf(t *testing.T) {
	t.Parallel()

	cases := map[int][reelsCount]int{
		1:  {0, 0, 0},
		22: {1, 1, 1},
		43: {2, 2, 2},
		64: {3, 3, 3},
		2:  {1, 0, 0},
		0:  {0, 0, 0},
	}
	for value, want := range cases {
		if got := reelsOf(value); got != want {
			t.Fatalf("reelsOf(%d) = %v, want %v", value, got, want)
		}
	}
	if got := pressedReel(answerData(reelDataKind, 3)); got != 3 {
		t.Fatalf("pressedReel: got %d", got)
	}
	if got := pressedReel("cpt:ans:3"); got != -1 {
		t.Fatalf("pressedReel of foreign data: got %d", got)
	}
}

func TestAnswerOptionsAreDistinctAndContainResult(t *testing.T) {
	t.Parallel()

	for i := 0; i < 200; i++ {
		expr := newExpression(2, 1)
		options := answerOptions(expr.result, 6, 2, 1)
		if len(options) != 6 {
			t.Fatalf("got %d options", len(options))
		}
		seen := map[int]bool{}
		found := false
		for _, o := range options {
			if seen[o] {
				t.Fatalf("duplicate option %d in %v", o, options)
			}
			seen[o] = true
			found = found || o == expr.result
		}
		if !found {
			t.Fatalf("result %d missing from %v", expr.result, options)
		}
	}
}

type blockingWorker struct {
	stopped chan struct{}
	closed  bool
}

func (w *blockingWorker) Run(ctx context.Context) (Result, error) {
	<-ctx.Done()
	close(w.stopped)
	return Result{Outcome: OutcomePassed}, ctx.Err()
}

func (w *blockingWorker) Close(context.Context) { w.closed = true }

func TestRaceTimesOutAndStopsWorker(t *testing.T) {
	t.Parallel()

	w := &blockingWorker{stopped: make(chan struct{})}
	res, timedOut, err := race(context.Background(), time.Now().Add(20*time.Millisecond), w)
	if err != nil {
		t.Fatalf("race: %v", err)
	}
	if !timedOut || res.Outcome != OutcomeFailed {
		t.Fatalf("got %v timedOut=%v, want failed by timeout", res.Outcome, timedOut)
	}
	select {
	case <-w.stopped:
	default:
		t.Fatalf("worker still running after race returned")
	}
}

func TestKnownUserSkipsChallenge(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(s *db.CaptchaSettings) { s.AutoPassKnown = true })
	err := f.s.GetDB().SetPassRecord(context.Background(), &db.PassRecord{
		UserID:     f.member.ID,
		ChatID:     -100999,
		Passed:     true,
		Complexity: int64(ComplexityMedium),
	})
	if err != nil {
		t.Fatalf("set pass record: %v", err)
	}

	f.join(t, f.member)
	f.wait()

	if !f.unrestricted(f.member.ID) {
		t.Fatalf("known user must be let in")
	}
	if !f.sentText("has already passed captcha") {
		t.Fatalf("welcome notice missing: %v", f.client.Texts())
	}
	if got := f.events.outcomes(event.TypeCaptchaResolved); len(got) != 0 {
		t.Fatalf("no challenge expected, got %v", got)
	}
}

func TestKnownUserBelowThresholdIsChallenged(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(s *db.CaptchaSettings) {
		s.AutoPassKnown = true
		s.Provider = s.Provider.WithKind(db.ProviderSlotMachine)
	})
	err := f.s.GetDB().SetPassRecord(context.Background(), &db.PassRecord{
		UserID:     f.member.ID,
		ChatID:     -100999,
		Passed:     true,
		Complexity: int64(ComplexityEasy),
	})
	if err != nil {
		t.Fatalf("set pass record: %v", err)
	}

	f.join(t, f.member)
	f.challengeMessage(t, testChatID)
}

func TestExpiredDeadlineFailsAndKicks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	msg := bottest.Message(f.chat, f.member, "")
	msg.NewChatMembers = []api.User{*f.member}
	msg.Date = int(time.Now().Add(-2 * time.Duration(db.DefaultCheckTimeSeconds) * time.Second).Unix())
	f.handle(t, &api.Update{Message: msg})
	f.wait()

	if got := f.events.outcomes(event.TypeCaptchaResolved); len(got) != 1 || got[0] != OutcomeFailed.String() {
		t.Fatalf("got outcomes %v, want one failed", got)
	}
	if !f.kicked(f.member.ID) {
		t.Fatalf("user must be kicked")
	}
	if !f.sentText("didn't pass captcha") {
		t.Fatalf("failure notice missing: %v", f.client.Texts())
	}
}

func TestExpressionAttemptsRunOut(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(s *db.CaptchaSettings) {
		s.Provider = s.Provider.WithKind(db.ProviderExpression)
		s.Provider.Attempts = 2
	})
	f.join(t, f.member)
	msg := f.challengeMessage(t, testChatID)
	result := evalExpression(t, msg.Text)

	var wrong []string
	for _, data := range buttonData(msg) {
		if strings.HasPrefix(data, callbackPrefix+answerDataKind) && data != answerData(answerDataKind, result) {
			wrong = append(wrong, data)
		}
	}
	if len(wrong) < 2 {
		t.Fatalf("not enough decoys: %v", buttonData(msg))
	}
	f.press(t, msg, f.member, wrong[0])
	f.press(t, msg, f.member, wrong[1])
	f.wait()

	if got := f.events.outcomes(event.TypeCaptchaResolved); len(got) != 1 || got[0] != OutcomeFailed.String() {
		t.Fatalf("got outcomes %v, want one failed", got)
	}
	if !f.kicked(f.member.ID) {
		t.Fatalf("user must be kicked after the last attempt")
	}
}

func TestExpressionPassesAfterMistake(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(s *db.CaptchaSettings) {
		s.Provider = s.Provider.WithKind(db.ProviderExpression)
		s.Provider.Attempts = 2
	})
	f.join(t, f.member)
	msg := f.challengeMessage(t, testChatID)
	correct := answerData(answerDataKind, evalExpression(t, msg.Text))

	for _, data := range buttonData(msg) {
		if strings.HasPrefix(data, callbackPrefix+answerDataKind) && data != correct {
			f.press(t, msg, f.member, data)
			break
		}
	}
	f.press(t, msg, f.other, correct)
	f.press(t, msg, f.member, correct)
	f.wait()

	if got := f.events.outcomes(event.TypeCaptchaResolved); len(got) != 1 || got[0] != OutcomePassed.String() {
		t.Fatalf("got outcomes %v, want one passed", got)
	}
	if f.kicked(f.member.ID) || !f.unrestricted(f.member.ID) {
		t.Fatalf("passed user must be let in")
	}
	passed, err := f.s.GetDB().HasPassed(context.Background(), f.member.ID, int64(ComplexityEasy))
	if err != nil || !passed {
		t.Fatalf("pass must be recorded: %v %v", passed, err)
	}
	answers := strings.Join(f.client.CallbackAnswers(), "|")
	if !strings.Contains(answers, "left retries: 1") || !strings.Contains(answers, "not for you") {
		t.Fatalf("unexpected callback answers %q", answers)
	}
}

func TestAdminCancelLetsUserIn(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.join(t, f.member)
	msg := f.challengeMessage(t, testChatID)

	f.press(t, msg, f.other, cancelData)
	f.press(t, msg, f.admin, cancelData)
	f.wait()

	if got := f.events.outcomes(event.TypeCaptchaResolved); len(got) != 1 || got[0] != OutcomeCancelled.String() {
		t.Fatalf("got outcomes %v, want one cancelled", got)
	}
	if f.kicked(f.member.ID) {
		t.Fatalf("cancelled captcha must not kick")
	}
	if !f.unrestricted(f.member.ID) {
		t.Fatalf("cancelled captcha must lift the restriction")
	}
	if !f.sentText("cancelled captcha for") {
		t.Fatalf("cancel notice missing: %v", f.client.Texts())
	}
	if !strings.Contains(strings.Join(f.client.CallbackAnswers(), "|"), "for admins only") {
		t.Fatalf("non-admin cancel must be refused")
	}
}

func TestSimplePass(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.join(t, f.member)
	msg := f.challengeMessage(t, testChatID)
	var token string
	for _, data := range buttonData(msg) {
		if data != cancelData {
			token = data
		}
	}
	f.press(t, msg, f.member, token)
	f.wait()

	if got := f.events.outcomes(event.TypeCaptchaResolved); len(got) != 1 || got[0] != OutcomePassed.String() {
		t.Fatalf("got outcomes %v, want one passed", got)
	}
	deleted := f.client.CountRequests(func(c api.Chattable) bool {
		cfg, ok := c.(api.DeleteMessageConfig)
		return ok && cfg.MessageID == msg.MessageID
	})
	if deleted != 1 {
		t.Fatalf("challenge message must be deleted once, got %d", deleted)
	}

	f.press(t, msg, f.member, token)
	if answers := f.client.CallbackAnswers(); answers[len(answers)-1] != "This captcha is over" {
		t.Fatalf("stale press answered with %q", answers[len(answers)-1])
	}
}

func TestUnreachableUserIsBlocked(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.client.SendErr = func(c api.Chattable) error {
		if cfg, ok := c.(api.MessageConfig); ok && cfg.ReplyMarkup != nil {
			return errors.New("Forbidden: bot was blocked by the user")
		}
		return nil
	}
	f.join(t, f.member)
	f.wait()

	if got := f.events.outcomes(event.TypeCaptchaResolved); len(got) != 1 || got[0] != OutcomeBlocked.String() {
		t.Fatalf("got outcomes %v, want one blocked", got)
	}
	if f.kicked(f.member.ID) {
		t.Fatalf("blocked user must not be kicked")
	}
	if !f.sentText("admins please do it manually") {
		t.Fatalf("blocked notice missing: %v", f.client.Texts())
	}
}

func TestCASBannedUserIsRemoved(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(s *db.CaptchaSettings) { s.CASEnabled = true })
	f.cas.banned[f.member.ID] = true
	f.join(t, f.member, f.other)
	f.challengeMessage(t, testChatID)

	if !f.kicked(f.member.ID) {
		t.Fatalf("cas banned user must be kicked")
	}
	if f.kicked(f.other.ID) {
		t.Fatalf("other user must get a challenge, not a kick")
	}
	if !f.sentText("is banned in") {
		t.Fatalf("cas notice missing: %v", f.client.Texts())
	}
	if got := f.events.outcomes(event.TypeCaptchaSkipped); len(got) != 1 {
		t.Fatalf("got skipped %v", got)
	}
}

func TestCASErrorLetsUserThrough(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(s *db.CaptchaSettings) { s.CASEnabled = true })
	f.cas.err = errors.New("cas is down")
	f.join(t, f.member)
	f.challengeMessage(t, testChatID)
	if f.kicked(f.member.ID) {
		t.Fatalf("lookup error must not kick")
	}
}

func TestJoinRequestApprovedInPrivate(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(s *db.CaptchaSettings) { s.ReactOnJoinRequest = true })
	req := &api.ChatJoinRequest{Chat: f.chat, From: *f.member, Date: int(time.Now().Unix())}
	if proceed := f.handle(t, &api.Update{ChatJoinRequest: req}); proceed {
		t.Fatalf("join request must stop the chain")
	}
	msg := f.challengeMessage(t, f.member.ID)
	for _, data := range buttonData(msg) {
		if data == cancelData {
			t.Fatalf("private challenge must not offer cancel")
		}
	}
	f.press(t, msg, f.member, buttonData(msg)[0])
	f.wait()

	approved := f.client.CountRequests(func(c api.Chattable) bool {
		cfg, ok := c.(api.ApproveChatJoinRequestConfig)
		return ok && cfg.UserID == f.member.ID && cfg.ChatID == testChatID
	})
	if approved != 1 {
		t.Fatalf("join request must be approved once, got %d", approved)
	}

	before := len(f.client.Messages())
	f.join(t, f.member)
	f.wait()
	if len(f.client.Messages()) != before {
		t.Fatalf("approved user must not be challenged again")
	}
}

func TestDisabledCaptchaIgnoresNewMembers(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(s *db.CaptchaSettings) { s.Enabled = false })
	msg := bottest.Message(f.chat, f.member, "")
	msg.NewChatMembers = []api.User{*f.member}
	if proceed := f.handle(t, &api.Update{Message: msg}); !proceed {
		t.Fatalf("disabled captcha must proceed")
	}
	f.wait()
	if len(f.client.Sent()) != 0 || len(f.client.Requests()) != 0 {
		t.Fatalf("nothing must be sent")
	}
}

func TestStopCancelsRunningChallenge(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.join(t, f.member)
	f.challengeMessage(t, testChatID)
	if err := f.engine.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got := f.events.outcomes(event.TypeCaptchaResolved); len(got) != 1 || got[0] != OutcomeCancelled.String() {
		t.Fatalf("got outcomes %v, want one cancelled", got)
	}
	if f.kicked(f.member.ID) {
		t.Fatalf("shutdown must not kick")
	}
	if err := f.engine.spawn(&batch{}); !errors.Is(err, errNotStarted) {
		t.Fatalf("spawn after stop: %v", err)
	}
}

func TestSettingCommands(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	f.handle(t, &api.Update{Message: bottest.Message(f.chat, f.member, "/captcha_use_expression")})
	s, _ := f.s.GetCaptchaSettings(ctx, testChatID)
	if s.Provider.Kind != db.ProviderSimple {
		t.Fatalf("member must not change settings")
	}

	for _, cmd := range []string{"/captcha_use_expression", "/captcha_enable_cas", "/captcha_disable_kick", "/disable_captcha"} {
		if proceed := f.handle(t, &api.Update{Message: bottest.Message(f.chat, f.admin, cmd)}); proceed {
			t.Fatalf("%s must stop the chain", cmd)
		}
	}
	s, err := f.s.GetCaptchaSettings(ctx, testChatID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if s.Provider.Kind != db.ProviderExpression || s.Provider.Answers != db.DefaultExpressionAnswers {
		t.Fatalf("provider not switched: %+v", s.Provider)
	}
	if !s.CASEnabled || s.KickOnUnsuccess || s.Enabled {
		t.Fatalf("unexpected settings %+v", s)
	}
	if !f.sentText("Captcha has been disabled") {
		t.Fatalf("reply missing: %v", f.client.Texts())
	}

	if proceed := f.handle(t, &api.Update{Message: bottest.Message(f.chat, f.admin, "/warn")}); !proceed {
		t.Fatalf("foreign commands must proceed")
	}
	if len(f.engine.Commands()) != len(settingCommands) {
		t.Fatalf("every setting command must be declared")
	}
}

func TestSlotMachineNeedsReelsInOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(s *db.CaptchaSettings) { s.Provider = s.Provider.WithKind(db.ProviderSlotMachine) })
	// 58 rolls 🍇 🍋 7️⃣
	f.client.DiceValue = 58
	f.join(t, f.member)
	dice := f.challengeMessage(t, testChatID)
	if dice.Dice == nil {
		t.Fatalf("challenge must listen on the dice message")
	}

	for _, reel := range []int{0, 1, 2, 3} {
		f.press(t, dice, f.member, answerData(reelDataKind, reel))
	}
	f.wait()

	if answers := strings.Join(f.client.CallbackAnswers(), "|"); answers != "Nope|Ok, next one|Ok, next one|Ok, next one" {
		t.Fatalf("unexpected callback answers %q", answers)
	}
	edits := f.edits(testChatID)
	if len(edits) != 3 {
		t.Fatalf("got %d progress edits, want 3: %q", len(edits), edits)
	}
	for i, want := range []string{"🍇✖✖", "🍇🍋✖", "🍇🍋7️⃣"} {
		if !strings.HasSuffix(edits[i], want) {
			t.Fatalf("edit %d is %q, want suffix %q", i, edits[i], want)
		}
	}
	if got := f.events.outcomes(event.TypeCaptchaResolved); len(got) != 1 || got[0] != OutcomePassed.String() {
		t.Fatalf("got outcomes %v, want one passed", got)
	}
	if !f.unrestricted(f.member.ID) {
		t.Fatalf("passed user must be unrestricted")
	}
}

func TestFailedJoinRequestIsReportedToGroup(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(s *db.CaptchaSettings) { s.ReactOnJoinRequest = true })
	req := &api.ChatJoinRequest{
		Chat: f.chat,
		From: *f.member,
		Date: int(time.Now().Add(-2 * time.Duration(db.DefaultCheckTimeSeconds) * time.Second).Unix()),
	}
	f.handle(t, &api.Update{ChatJoinRequest: req})
	f.wait()

	if got := f.events.outcomes(event.TypeCaptchaResolved); len(got) != 1 || got[0] != OutcomeFailed.String() {
		t.Fatalf("got outcomes %v, want one failed", got)
	}
	declined := f.client.CountRequests(func(c api.Chattable) bool {
		cfg, ok := c.(api.DeclineChatJoinRequest)
		return ok && cfg.UserID == f.member.ID
	})
	if declined != 1 {
		t.Fatalf("join request must be declined once, got %d", declined)
	}
	if !f.sentTo(testChatID, "didn't pass captcha") {
		t.Fatalf("failure notice must go to the group: %v", f.client.Texts())
	}
	if f.sentTo(f.member.ID, "didn't pass captcha") {
		t.Fatalf("failure notice must not go to the user")
	}
}

func TestShutdownBeforePresentingIsCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	settings, err := f.s.GetCaptchaSettings(context.Background(), testChatID)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &batch{chat: f.chat, eventTime: time.Now(), users: []*api.User{f.member}, settings: settings}
	f.engine.challengeUser(ctx, b, f.member)

	if got := f.events.outcomes(event.TypeCaptchaResolved); len(got) != 1 || got[0] != OutcomeCancelled.String() {
		t.Fatalf("got outcomes %v, want one cancelled", got)
	}
	if f.sentText("admins please do it manually") {
		t.Fatalf("shutdown must not report the user as unreachable")
	}
	if f.kicked(f.member.ID) {
		t.Fatalf("shutdown must not kick")
	}
}
