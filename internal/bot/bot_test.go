package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"staffbot/internal/apperr"
	"staffbot/internal/clock"
	"staffbot/internal/names"
	"staffbot/internal/notifier/broadcast"
	"staffbot/internal/notifier/notifiertest"
	"staffbot/internal/roster"
	"staffbot/internal/storage"
	"staffbot/internal/task/engine"
	kit "staffbot/internal/transport"
	"staffbot/internal/transport/telegram/router"
	"staffbot/internal/transport/transporttest"
	"staffbot/internal/workflow/announce"
	"staffbot/internal/workflow/auth"
	"staffbot/internal/workflow/channel"
	"staffbot/internal/workflow/duty"
	"staffbot/internal/workflow/news"
	logx "staffbot/pkg/logx"
	"staffbot/pkg/tgui"
)

const adminID = 1

type fixture struct {
	bot   *Bot
	store storage.Store
	rec   *notifiertest.Recorder
	chat  *transporttest.Adapter
	roles *router.Roles
	bc    *recordingBroadcaster
	jobs  *fakeJobs
}

// recordingBroadcaster keeps job ids so tests can wait for delivery.
type recordingBroadcaster struct {
	*broadcast.Service
	mu  sync.Mutex
	ids []string
}

func (r *recordingBroadcaster) Submit(j broadcast.Job) (string, error) {
	id, err := r.Service.Submit(j)
	if err == nil {
		r.mu.Lock()
		r.ids = append(r.ids, id)
		r.mu.Unlock()
	}
	return id, err
}

func (r *recordingBroadcaster) waitLast(t *testing.T) broadcast.JobStatus {
	t.Helper()
	r.mu.Lock()
	if len(r.ids) == 0 {
		r.mu.Unlock()
		t.Fatal("no broadcast submitted")
	}
	id := r.ids[len(r.ids)-1]
	r.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := r.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	return st
}

type fakeJobs struct {
	mu   sync.Mutex
	ran  []string
	busy map[string]bool
}

func (j *fakeJobs) RunNow(name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.busy[name] {
		return engine.ErrOverlapSkip
	}
	j.ran = append(j.ran, name)
	return nil
}

const staffCSV = "ФИО,Должность,Отдел\n" +
	"Иванов Иван Петрович,Инженер,IT\n" +
	"Смирнова Анна Сергеевна,Бухгалтер,Финансы\n"

func newFixture(t *testing.T) fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	rec := notifiertest.New()
	clk := clock.NewFake(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	src := roster.Static{"Иван Иванов", "Анна Смирнова", "Иванов Иван Петрович"}
	roles := router.NewRoles(st, adminID, time.Minute)

	bc := &recordingBroadcaster{Service: broadcast.New(broadcast.Config{Workers: 1, RetryDelay: time.Millisecond}, rec, clk, logx.Nop())}
	bc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		bc.Stop(ctx)
	})
	staff := filepath.Join(t.TempDir(), "staff.csv")
	if err := os.WriteFile(staff, []byte(staffCSV), 0o600); err != nil {
		t.Fatal(err)
	}
	jobs := &fakeJobs{busy: map[string]bool{}}

	b := New(Deps{
		Store: st,
		Auth:  auth.New(auth.Deps{Store: st, Roster: src, Messenger: rec, Admin: rec, Clock: clk}),
		News:  news.New(news.Config{MinLength: 10, MaxPhotos: 2}, news.Deps{Store: st, Messenger: rec, Admin: rec, Clock: clk}),
		Duty:  duty.New(duty.Deps{Store: st, Messenger: rec, Admin: rec, Clock: clk, Location: time.UTC}),
		Channel: channel.New(channel.Deps{
			Store: st, Roster: src, Messenger: rec, Admin: rec, Clock: clk,
			InviteLink: "https://t.me/+invite",
		}),
		Announce:  announce.New(announce.Deps{Store: st, Broadcaster: bc, Messenger: rec, Clock: clk}),
		Directory: &roster.FileProvider{Path: staff},
		Jobs:      jobs,
		Roles:     roles,
	})
	return fixture{bot: b, store: st, rec: rec, chat: transporttest.New(), roles: roles, bc: bc, jobs: jobs}
}

func (f fixture) req(from int64, text string) *router.Request {
	return &router.Request{
		Chat:    kit.ChatTarget{ChatID: from},
		FromID:  from,
		Text:    text,
		Adapter: f.chat,
		Logger:  logx.Nop(),
	}
}

func (f fixture) callback(from int64, scope, action string, args ...string) *router.Request {
	r := f.req(from, "")
	r.Callback = tgui.Callback{Scope: scope, Action: action, Args: args}
	return r
}

func (f fixture) seedUser(t *testing.T, id int64, name string, role storage.Role) {
	t.Helper()
	u := storage.User{ID: id, Name: name, Position: "staff", Role: role, Status: storage.UserAuthorized}
	if err := f.store.UpsertUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
}

func (f fixture) lastReply(t *testing.T) string {
	t.Helper()
	msgs := f.chat.Messages()
	if len(msgs) == 0 {
		t.Fatal("no replies")
	}
	return msgs[len(msgs)-1].Text
}

func TestAuthDialog(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if lvl, _ := f.roles.Level(ctx, 20); lvl != router.LevelGuest {
		t.Fatalf("lvl=%v", lvl)
	}
	if err := f.bot.cmdAuth(ctx, f.req(20, "")); err != nil {
		t.Fatal(err)
	}
	if err := f.bot.onText(ctx, f.req(20, "И1")); !apperr.IsValidation(err) {
		t.Fatalf("want validation, got %v", err)
	}
	if err := f.bot.onText(ctx, f.req(20, "  иван   иванов ")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "должность") {
		t.Fatalf("reply=%q", f.lastReply(t))
	}
	if err := f.bot.onText(ctx, f.req(20, "Инженер")); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.bot.dlg.get(20); ok {
		t.Fatal("dialog should be finished")
	}
	u, err := f.store.GetUser(ctx, 20)
	if err != nil || u.Status != storage.UserAuthorized || u.Role != storage.RoleUser {
		t.Fatalf("u=%+v err=%v", u, err)
	}
	if lvl, _ := f.roles.Level(ctx, 20); lvl != router.LevelUser {
		t.Fatalf("cached level not refreshed: %v", lvl)
	}
}

func TestNewsDialogCollectsPhotos(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.bot.cmdNews(ctx, f.req(30, "")); err != nil {
		t.Fatal(err)
	}
	if err := f.bot.onText(ctx, f.req(30, "Открылась новая столовая на втором этаже")); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"p1", "p2", "p3"} {
		r := f.req(30, "")
		r.PhotoID = id
		if err := f.bot.onText(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if !strings.Contains(f.lastReply(t), "не более 2") {
		t.Fatalf("reply=%q", f.lastReply(t))
	}
	if err := f.bot.onText(ctx, f.req(30, "Готово")); err != nil {
		t.Fatal(err)
	}
	list, _ := f.store.ListProposals(ctx, storage.ProposalPending)
	if len(list) != 1 || len(list[0].Attachments) != 2 || list[0].Attachments[0] != "p1" {
		t.Fatalf("list=%+v", list)
	}
	if _, ok := f.bot.dlg.get(30); ok {
		t.Fatal("dialog should be finished")
	}
}

func TestNewsDoneWithoutTextKeepsDraft(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	_ = f.bot.cmdNews(ctx, f.req(31, ""))
	r := f.req(31, "")
	r.PhotoID = "p1"
	_ = f.bot.onText(ctx, r)

	if err := f.bot.cbNewsDone(ctx, f.req(31, "")); !apperr.IsValidation(err) {
		t.Fatalf("want validation, got %v", err)
	}
	sess, ok := f.bot.dlg.get(31)
	if !ok || len(sess.Photos) != 1 {
		t.Fatalf("draft lost: %+v", sess)
	}
}

func TestReviewButtons(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	p, err := f.bot.news.Propose(ctx, news.Draft{AuthorID: 30, Text: "Завтра субботник во дворе офиса"})
	if err != nil {
		t.Fatal(err)
	}
	cb := f.req(adminID, "")
	cb.Callback = tgui.Callback{Scope: news.CallbackScope, Action: "approve", Args: []string{"1"}}
	cb.Message = kit.MessageRef{ChatID: adminID, MessageID: 9}

	f.rec.Set(func(r *notifiertest.Recorder) { r.FailChannel = true })
	if err := f.bot.cbNewsApprove(ctx, cb); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !strings.Contains(f.lastReply(t), "не удалась") {
		t.Fatalf("reply=%q", f.lastReply(t))
	}
	f.rec.Set(func(r *notifiertest.Recorder) { r.FailChannel = false })
	if err := f.bot.cbNewsRepublish(ctx, cb); err != nil {
		t.Fatalf("republish: %v", err)
	}
	if !strings.Contains(f.lastReply(t), "Опубликовано") {
		t.Fatalf("reply=%q", f.lastReply(t))
	}
	if err := f.bot.cbNewsReject(ctx, cb); !apperr.IsConflict(err) {
		t.Fatalf("reject after approve: %v", err)
	}
	if p.ID != 1 {
		t.Fatalf("unexpected id %d", p.ID)
	}
}

func TestDutyAddInline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.UpsertUser(ctx, storage.User{ID: 40, Name: "Иван Иванов", Role: storage.RoleUser, Status: storage.UserAuthorized}); err != nil {
		t.Fatal(err)
	}
	if err := f.bot.cmdDutyAdd(ctx, f.req(adminID, "Иван Иванов: 11.03.2025\nКто-то: 11.03.2025")); err != nil {
		t.Fatal(err)
	}
	reply := f.lastReply(t)
	if !strings.Contains(reply, "Добавлено записей: 1") || !strings.Contains(reply, "Строка 2") {
		t.Fatalf("reply=%q", reply)
	}
}

func TestRoleCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	if err := f.store.UpsertUser(ctx, storage.User{ID: 50, Name: "Анна Смирнова", Role: storage.RoleUser, Status: storage.UserAuthorized}); err != nil {
		t.Fatal(err)
	}
	if lvl, _ := f.roles.Level(ctx, 50); lvl != router.LevelUser {
		t.Fatalf("lvl=%v", lvl)
	}

	r := f.req(adminID, "50")
	r.Args = []string{"50"}
	if err := f.bot.cmdRole(ctx, r); !apperr.IsValidation(err) {
		t.Fatalf("want usage error, got %v", err)
	}
	r.Args = []string{"50", "boss"}
	if err := f.bot.cmdRole(ctx, r); !apperr.IsValidation(err) {
		t.Fatalf("want role error, got %v", err)
	}
	r.Args = []string{"50", "Moderator"}
	if err := f.bot.cmdRole(ctx, r); err != nil {
		t.Fatal(err)
	}
	if lvl, _ := f.roles.Level(ctx, 50); lvl != router.LevelModerator {
		t.Fatalf("lvl=%v", lvl)
	}
	r.Args = []string{"999", "admin"}
	if err := f.bot.cmdRole(ctx, r); !apperr.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestJoinDialog(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.bot.onJoinRequest(ctx, kit.JoinRequest{FromID: 60, UserChatID: 60}); err != nil {
		t.Fatal(err)
	}
	sess, ok := f.bot.dlg.get(60)
	if !ok || sess.Flow != flowJoin {
		t.Fatalf("sess=%+v ok=%v", sess, ok)
	}
	if err := f.bot.onText(ctx, f.req(60, "Анна Смирнова")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.GetSubscriber(ctx, 60); err != nil {
		t.Fatalf("subscriber: %v", err)
	}
	if err := f.bot.cmdSubscribe(ctx, f.req(60, "")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "уже подписаны") {
		t.Fatalf("reply=%q", f.lastReply(t))
	}
}

func TestUnknownTextWithoutDialog(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.bot.onText(context.Background(), f.req(70, "привет")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "/help") {
		t.Fatalf("reply=%q", f.lastReply(t))
	}
}

func TestAuthAsksForFullName(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.bot.cmdAuth(ctx, f.req(21, "")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "Фамилия Имя Отчество") {
		t.Fatalf("prompt=%q", f.lastReply(t))
	}
	_ = f.bot.onText(ctx, f.req(21, "Иванов Иван"))
	if err := f.bot.onText(ctx, f.req(21, "Инженер")); err != nil {
		t.Fatal(err)
	}
	if st, _ := f.bot.auth.StateOf(ctx, 21); st != auth.Pending {
		t.Fatalf("two-part name state=%v", st)
	}

	_ = f.bot.cmdAuth(ctx, f.req(22, ""))
	_ = f.bot.onText(ctx, f.req(22, "Иванов Иван Петрович"))
	if err := f.bot.onText(ctx, f.req(22, "Инженер")); err != nil {
		t.Fatal(err)
	}
	if st, _ := f.bot.auth.StateOf(ctx, 22); st != auth.Authorized {
		t.Fatalf("full name state=%v", st)
	}
}

func TestJoinAsksForFullName(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if err := f.bot.onJoinRequest(ctx, kit.JoinRequest{FromID: 61, UserChatID: 61}); err != nil {
		t.Fatal(err)
	}
	prompt := f.rec.DirectTo(61)
	if len(prompt) != 1 || !strings.Contains(prompt[0].Text, "Фамилия Имя Отчество") {
		t.Fatalf("prompt=%+v", prompt)
	}
	if err := f.bot.onText(ctx, f.req(61, "иванов иван петрович")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.GetSubscriber(ctx, 61); err != nil {
		t.Fatalf("subscriber: %v", err)
	}
}

func TestUsersScreen(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		f.seedUser(t, int64(100+i), fmt.Sprintf("Сотрудник %02d", i), storage.RoleUser)
	}
	if err := f.store.AddSubscriber(ctx, storage.ChannelSubscriber{UserID: 105, Name: "Сотрудник 05"}); err != nil {
		t.Fatal(err)
	}

	if err := f.bot.cmdUsers(ctx, f.req(adminID, "")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "Страница 1/2 • 1–10 из 12") {
		t.Fatalf("first page=%q", f.lastReply(t))
	}
	if err := f.bot.cbUsersPage(ctx, f.callback(adminID, usersScope, "page", "1")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "Страница 2/2 • 11–12 из 12") {
		t.Fatalf("second page=%q", f.lastReply(t))
	}

	if err := f.bot.cbUserOpen(ctx, f.callback(adminID, usersScope, "open", "105", "0")); err != nil {
		t.Fatal(err)
	}
	if card := f.lastReply(t); !strings.Contains(card, "Сотрудник 05") || !strings.Contains(card, "<b>user</b>") {
		t.Fatalf("card=%q", card)
	}
	if err := f.bot.cbUserRole(ctx, f.callback(adminID, usersScope, "role", "105", "moderator", "0")); err != nil {
		t.Fatal(err)
	}
	if lvl, _ := f.roles.Level(ctx, 105); lvl != router.LevelModerator {
		t.Fatalf("lvl=%v", lvl)
	}
	if err := f.bot.cbUserRole(ctx, f.callback(adminID, usersScope, "role", "105", "boss", "0")); !apperr.IsValidation(err) {
		t.Fatalf("bad role: %v", err)
	}

	if err := f.bot.cbUserDelete(ctx, f.callback(adminID, usersScope, "del", "105", "1")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "Удалить пользователя") {
		t.Fatalf("confirm=%q", f.lastReply(t))
	}
	if err := f.bot.cbUserDeleteConfirm(ctx, f.callback(adminID, usersScope, "delok", "105", "1")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "Страница 2/2 • 11–11 из 11") {
		t.Fatalf("after delete=%q", f.lastReply(t))
	}
	if lvl, _ := f.roles.Level(ctx, 105); lvl != router.LevelGuest {
		t.Fatalf("removed user lvl=%v", lvl)
	}
	if _, err := f.store.GetSubscriber(ctx, 105); err == nil {
		t.Fatal("subscription kept after removal")
	}
	_, _, _, removed := f.rec.Snapshot()
	if len(removed) != 1 || removed[0] != 105 {
		t.Fatalf("channel removals=%v", removed)
	}
	got := f.rec.DirectTo(105)
	if len(got) == 0 || !strings.Contains(got[len(got)-1].Text, "отозван") {
		t.Fatalf("removal notice=%+v", got)
	}
	if err := f.bot.cbUserOpen(ctx, f.callback(adminID, usersScope, "open", "105", "0")); !apperr.IsNotFound(err) {
		t.Fatalf("open removed: %v", err)
	}
}

func TestNotifyDialog(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.seedUser(t, 80, "Первый Сотрудник", storage.RoleUser)
	f.seedUser(t, 81, "Второй Сотрудник", storage.RoleModerator)
	f.seedUser(t, 82, "Третий Сотрудник", storage.RoleUser)
	f.rec.Set(func(r *notifiertest.Recorder) { r.FailDirect[82] = true })

	if err := f.bot.cmdNotify(ctx, f.req(adminID, "")); err != nil {
		t.Fatal(err)
	}
	if err := f.bot.onText(ctx, f.req(adminID, "   ")); !apperr.IsValidation(err) {
		t.Fatalf("empty text: %v", err)
	}
	if sess, ok := f.bot.dlg.get(adminID); !ok || sess.Flow != flowNotify {
		t.Fatal("dialog should survive a bad text")
	}
	if err := f.bot.onText(ctx, f.req(adminID, "Завтра офис закрыт")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "получателей: 3") {
		t.Fatalf("reply=%q", f.lastReply(t))
	}
	if _, ok := f.bot.dlg.get(adminID); ok {
		t.Fatal("dialog should be finished")
	}

	st := f.bc.waitLast(t)
	if st.Sent != 2 || st.Failed != 1 {
		t.Fatalf("status=%+v", st)
	}
	summary := f.rec.DirectTo(adminID)
	if len(summary) == 0 || !strings.Contains(summary[len(summary)-1].Text, "отправлено 2 из 3") {
		t.Fatalf("summary=%+v", summary)
	}

	if err := f.bot.cmdAdminLog(ctx, f.req(adminID, "")); err != nil {
		t.Fatal(err)
	}
	if logText := f.lastReply(t); !strings.Contains(logText, "broadcast") || !strings.Contains(logText, "sent 2 of 3") {
		t.Fatalf("log=%q", logText)
	}
}

func TestSearchCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	r := f.req(adminID, "Иванов")
	r.Args = []string{"Иванов"}
	if err := f.bot.cmdSearch(ctx, r); err != nil {
		t.Fatal(err)
	}
	if reply := f.lastReply(t); !strings.Contains(reply, "Найдено: 1") || !strings.Contains(reply, "Инженер") {
		t.Fatalf("reply=%q", reply)
	}
	r = f.req(adminID, "должность бухгалтер")
	r.Args = []string{"должность", "бухгалтер"}
	if err := f.bot.cmdSearch(ctx, r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "Смирнова Анна Сергеевна") {
		t.Fatalf("reply=%q", f.lastReply(t))
	}

	if err := f.bot.cmdSearch(ctx, f.req(adminID, "")); err != nil {
		t.Fatal(err)
	}
	if err := f.bot.cbSearchField(ctx, f.callback(adminID, searchScope, string(roster.FieldDepartment))); err != nil {
		t.Fatal(err)
	}
	if err := f.bot.onText(ctx, f.req(adminID, "и")); !apperr.IsValidation(err) {
		t.Fatalf("short query: %v", err)
	}
	if err := f.bot.onText(ctx, f.req(adminID, "финансы")); err != nil {
		t.Fatal(err)
	}
	if reply := f.lastReply(t); !strings.Contains(reply, "«Отдел»") || !strings.Contains(reply, "Найдено: 1") {
		t.Fatalf("reply=%q", reply)
	}
	if _, ok := f.bot.dlg.get(adminID); ok {
		t.Fatal("dialog should be finished")
	}
}

func TestDutyRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	r := f.req(adminID, "check")
	r.Args = []string{"check"}
	if err := f.bot.cmdDutyRun(ctx, r); err != nil {
		t.Fatal(err)
	}
	if len(f.jobs.ran) != 1 || f.jobs.ran[0] != duty.JobCheck {
		t.Fatalf("ran=%v", f.jobs.ran)
	}

	r.Args = []string{"weekly"}
	if err := f.bot.cmdDutyRun(ctx, r); !apperr.IsValidation(err) {
		t.Fatalf("bad job: %v", err)
	}

	f.jobs.busy[duty.JobNotify] = true
	r.Args = []string{"notify"}
	if err := f.bot.cmdDutyRun(ctx, r); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "уже выполняется") {
		t.Fatalf("reply=%q", f.lastReply(t))
	}
}

func TestSyncChannelWhileRunning(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	entered, release := make(chan struct{}), make(chan struct{})
	f.bot.channel = channel.New(channel.Deps{
		Store: f.store, Messenger: f.rec, Admin: f.rec,
		Roster: roster.ProviderFunc(func(context.Context) (names.Set, error) {
			close(entered)
			<-release
			return names.NewSet("Анна Смирнова"), nil
		}),
	})
	done := make(chan error, 1)
	go func() {
		_, err := f.bot.channel.Run(ctx)
		done <- err
	}()
	<-entered

	err := f.bot.cmdSyncChannel(ctx, f.req(adminID, ""))
	close(release)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(f.lastReply(t), "уже выполняется") {
		t.Fatalf("reply=%q", f.lastReply(t))
	}
	if err := <-done; err != nil {
		t.Fatalf("scheduled pass: %v", err)
	}
}
