package view

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/domain"
	"github.com/tkc/ttrak/internal/tasklist"
)

// errQuit は入力が尽きたか終了が指示されたことを表す
var errQuit = errors.New("quit")

// Controller は画面から呼び出すアプリケーション側の処理
type Controller interface {
	// Refresh は設定済みの全サービスを同期し、結果の要約を返す
	Refresh(ctx context.Context) (string, error)
	// SetupDefaults はセットアップ画面の初期値を返す
	SetupDefaults() config.SetupInput
	// Setup は入力された認証情報を検証して保存し、結果の要約を返す
	Setup(ctx context.Context, in config.SetupInput) (string, error)
}

// Options はViewの入出力と初期状態
type Options struct {
	In          io.Reader
	Out         io.Writer
	DefaultView domain.View
	Message     string // 起動直後に表示するメッセージ
}

// View は一覧表示とキー操作のループ
type View struct {
	tasks  *tasklist.Service
	ctrl   Controller
	out    io.Writer
	lines  chan string
	done   chan struct{}
	stop   sync.Once
	logger *zap.Logger

	filter  domain.TaskFilter
	cursor  int
	message string
}

// New は新しいViewを作成する
func New(tasks *tasklist.Service, ctrl Controller, opts Options, logger *zap.Logger) *View {
	v := &View{
		tasks:   tasks,
		ctrl:    ctrl,
		out:     opts.Out,
		lines:   make(chan string),
		done:    make(chan struct{}),
		logger:  logger,
		filter:  domain.TaskFilter{View: domain.ParseView(string(opts.DefaultView))},
		message: opts.Message,
	}
	go v.readLines(opts.In)
	return v
}

func (v *View) readLines(in io.Reader) {
	defer close(v.lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case v.lines <- scanner.Text():
		case <-v.done:
			return
		}
	}
}

// Run は入力が尽きるか q が入力されるかctxがキャンセルされるまで操作を受け付ける
func (v *View) Run(ctx context.Context) error {
	defer v.stop.Do(func() { close(v.done) })

	for {
		v.render()

		line, err := v.next(ctx)
		if err != nil {
			if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if err := v.dispatch(ctx, line); err != nil {
			if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func (v *View) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-v.lines:
		if !ok {
			return "", errQuit
		}
		return line, nil
	}
}

// ask はラベルを表示して1行読む。空行なら def を返す
func (v *View) ask(ctx context.Context, label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(v.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(v.out, "%s: ", label)
	}
	line, err := v.next(ctx)
	if err != nil {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

func (v *View) visible() []domain.Task {
	tasks := v.tasks.Filter(v.filter)
	if v.cursor >= len(tasks) {
		v.cursor = len(tasks) - 1
	}
	if v.cursor < 0 {
		v.cursor = 0
	}
	return tasks
}

func (v *View) selected() (domain.Task, bool) {
	tasks := v.visible()
	if len(tasks) == 0 {
		return domain.Task{}, false
	}
	return tasks[v.cursor], true
}

func (v *View) render() {
	fmt.Fprintln(v.out)
	renderList(v.out, v.visible(), v.filter, v.cursor)
	if v.message != "" {
		fmt.Fprintln(v.out, v.message)
		v.message = ""
	}
	fmt.Fprint(v.out, "> ")
}

// dispatch は1行分のコマンドを実行する
func (v *View) dispatch(ctx context.Context, line string) error {
	// スペース1つはステータス巡回
	if line == " " {
		return v.cycle()
	}
	cmd := strings.TrimSpace(line)
	if cmd == "" {
		return nil
	}

	v.logger.Debug("command", zap.String("cmd", cmd))

	if strings.HasPrefix(cmd, "/") {
		v.filter.Query = strings.TrimSpace(strings.TrimPrefix(cmd, "/"))
		v.cursor = 0
		return nil
	}

	switch cmd {
	case "q", "quit":
		return errQuit
	case "?", "h", "help":
		v.message = helpText
	case "j", "down":
		v.cursor++
		v.visible()
	case "k", "up":
		if v.cursor > 0 {
			v.cursor--
		}
	case "g":
		v.cursor = 0
	case "G":
		v.cursor = len(v.visible()) - 1
	case "1", "2", "3", "4":
		v.filter.View = domain.Views[cmd[0]-'1']
		v.cursor = 0
	case "i":
		if t, ok := v.selected(); ok {
			renderDetail(v.out, t)
		}
	case "n":
		return v.create(ctx)
	case "e":
		return v.edit(ctx)
	case "d":
		return v.remove(ctx)
	case "s":
		return v.cycle()
	case "r":
		return v.refresh(ctx)
	case "S":
		return v.setup(ctx)
	default:
		v.message = fmt.Sprintf("unknown command %q (? for help)", cmd)
	}
	return nil
}

// create は createTask(title, status, priority) を発行する
func (v *View) create(ctx context.Context) error {
	title, err := v.ask(ctx, "Title", "")
	if err != nil {
		return err
	}
	status, priority, err := v.askStatusPriority(ctx, domain.StatusTodo, domain.PriorityNone)
	if err != nil {
		return err
	}

	task, err := v.tasks.Create(title, status, priority)
	if err != nil {
		return v.report(err)
	}
	v.filter = domain.TaskFilter{View: v.filter.View}
	v.cursor = 0
	v.message = "Created " + task.ID
	return nil
}

// edit は editTask(id, title, status, priority) を発行する
func (v *View) edit(ctx context.Context) error {
	t, ok := v.selected()
	if !ok {
		v.message = "No task selected"
		return nil
	}

	title, err := v.ask(ctx, "Title", t.Title)
	if err != nil {
		return err
	}
	status, priority, err := v.askStatusPriority(ctx, t.Status, t.Priority)
	if err != nil {
		return err
	}

	if _, err := v.tasks.Update(t.ID, title, status, priority); err != nil {
		return v.report(err)
	}
	v.message = "Updated " + t.ID
	return nil
}

// remove は確認のうえ deleteTask(id) を発行する
func (v *View) remove(ctx context.Context) error {
	t, ok := v.selected()
	if !ok {
		v.message = "No task selected"
		return nil
	}

	answer, err := v.ask(ctx, fmt.Sprintf("Delete %s %q? (y/N)", t.ID, truncate(t.Title, titleWidth)), "")
	if err != nil {
		return err
	}
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		v.message = "Cancelled"
		return nil
	}

	if err := v.tasks.Delete(t.ID); err != nil {
		return v.report(err)
	}
	v.message = "Deleted " + t.ID
	return nil
}

// cycle は cycleStatus(id) を発行する
func (v *View) cycle() error {
	t, ok := v.selected()
	if !ok {
		return nil
	}
	updated, err := v.tasks.CycleStatus(t.ID)
	if err != nil {
		return v.report(err)
	}
	v.message = fmt.Sprintf("%s → %s", updated.ID, updated.Status)
	return nil
}

func (v *View) refresh(ctx context.Context) error {
	fmt.Fprintln(v.out, "Syncing...")
	msg, err := v.ctrl.Refresh(ctx)
	if err != nil {
		return err
	}
	v.message = msg
	return nil
}

func (v *View) askStatusPriority(ctx context.Context, status domain.Status, priority domain.Priority) (domain.Status, domain.Priority, error) {
	s, err := v.ask(ctx, "Status ("+joinStatuses()+")", string(status))
	if err != nil {
		return "", "", err
	}
	p, err := v.ask(ctx, "Priority ("+joinPriorities()+")", string(priority))
	if err != nil {
		return "", "", err
	}
	return domain.Status(s), domain.Priority(p), nil
}

// report は入力起因のエラーをメッセージにし、それ以外は呼び出し元へ返す
func (v *View) report(err error) error {
	if errors.Is(err, tasklist.ErrValidation) || errors.Is(err, tasklist.ErrNotFound) {
		v.message = "✗ " + err.Error()
		return nil
	}
	return err
}

func joinStatuses() string {
	parts := make([]string, 0, len(domain.Statuses))
	for _, s := range domain.Statuses {
		parts = append(parts, string(s))
	}
	return strings.Join(parts, "/")
}

func joinPriorities() string {
	parts := make([]string, 0, len(domain.Priorities))
	for _, p := range domain.Priorities {
		parts = append(parts, string(p))
	}
	return strings.Join(parts, "/")
}

const helpText = `Commands:
  j/k        move down/up        g/G    first/last
  1-4        all/todo/inProgress/done
  /text      search (/ alone clears)
  i          show details
  n          new task            e      edit task
  d          delete task         s      cycle status (or a single space)
  r          sync now            S      setup integrations
  q          quit`
