package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/KaramelBytes/docqa-cli/internal/app"
	"github.com/KaramelBytes/docqa-cli/internal/auth"
	"github.com/KaramelBytes/docqa-cli/internal/documents"
	"github.com/KaramelBytes/docqa-cli/internal/gateway"
	"github.com/KaramelBytes/docqa-cli/internal/guard"
	"github.com/KaramelBytes/docqa-cli/internal/session"
	"github.com/spf13/cobra"
)

const shellHelp = `Screens: /login /register /dashboard /documents /qa
  go <path>                 open a screen
  login [email] [password]
  register [username] [email] [password] [confirm]
  logout | whoami | health
  docs                      list documents (documents screen)
  upload <file>             upload a PDF, DOCX or TXT file
  delete <id|#>             delete a document (asks first)
  select <id|#>             pick the document for questions (qa screen)
  ask <question>            ask about the selected document
  summarize                 summarize the selected document
  history                   history of the selected document
  forget <qa-id>            delete a history record
  stats                     dashboard
  help | exit`

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive client with login, documents, Q&A and dashboard screens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		sh := &shell{a: a, in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}
		if a.SessionFile != "" {
			if err := session.WatchFile(ctx, a.SessionFile, sh.sessionChanged); err != nil {
				a.Logger.Warn().Err(err).Msg("session file watch disabled")
			}
		}
		return sh.run(ctx)
	},
}

type shell struct {
	a   *app.App
	in  *bufio.Reader
	out io.Writer
}

func (s *shell) run(ctx context.Context) error {
	fmt.Fprintln(s.out, "docqa shell. Type 'help' for commands.")
	s.navigate(ctx, string(guard.RouteRoot))
	for {
		if _, ok := s.a.Guard.PendingRedirect(); ok {
			fmt.Fprintln(s.out, "→ /login")
			s.activate(ctx, guard.RouteLogin)
		}
		fmt.Fprintf(s.out, "docqa%s> ", s.a.Guard.Current())
		line, err := s.in.ReadString('\n')
		if strings.TrimSpace(line) != "" {
			if quit := s.exec(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(s.out)
			return nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// exec runs one line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	verb := strings.ToLower(fields[0])
	args := fields[1:]
	rest := strings.TrimSpace(line[len(fields[0]):])

	switch verb {
	case "exit", "quit":
		return true
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "go", "cd":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: go <path>")
			return false
		}
		s.navigate(ctx, args[0])
	case "login":
		s.login(ctx, args)
	case "register":
		s.register(ctx, args)
	case "logout":
		if err := s.a.Logout(); err != nil {
			s.report(err)
			return false
		}
		fmt.Fprintln(s.out, "✓ Logged out")
		s.navigate(ctx, string(guard.RouteLogin))
	case "whoami":
		if sess, ok := s.a.Store.Session(); ok {
			fmt.Fprintf(s.out, "%s <%s>\n", sess.User.Username, sess.User.Email)
		} else {
			fmt.Fprintln(s.out, "Not logged in")
		}
	case "health":
		h, err := s.a.Gateway.Health(ctx)
		if err != nil {
			s.report(err)
			return false
		}
		fmt.Fprintf(s.out, "✓ %s (version %s)\n", h.Status, h.Version)
	case "docs", "ls":
		s.navigate(ctx, string(guard.RouteDocuments))
	case "upload":
		s.upload(ctx, rest)
	case "delete", "rm":
		s.deleteDoc(ctx, args)
	case "select":
		s.selectDoc(ctx, args)
	case "ask":
		s.askQuestion(ctx, rest)
	case "summarize":
		if !s.enter(ctx, guard.RouteQA) {
			return false
		}
		text, err := s.a.Workspace.Summarize(ctx)
		if err != nil {
			s.report(err)
			return false
		}
		fmt.Fprintf(s.out, "Summary:\n%s\n", text)
	case "history":
		if !s.enter(ctx, guard.RouteQA) {
			return false
		}
		recs, err := s.a.Workspace.RefreshHistory(ctx)
		if err != nil {
			s.report(err)
			return false
		}
		printHistory(s.out, recs)
	case "forget":
		if len(args) != 1 {
			fmt.Fprintln(s.out, "usage: forget <qa-id>")
			return false
		}
		if !s.enter(ctx, guard.RouteQA) {
			return false
		}
		if err := s.a.Workspace.DeleteHistory(ctx, args[0]); err != nil {
			s.report(err)
			return false
		}
		fmt.Fprintln(s.out, "✓ Record deleted")
		printHistory(s.out, s.a.Workspace.View().History)
	case "stats", "dashboard":
		s.navigate(ctx, string(guard.RouteDashboard))
	default:
		fmt.Fprintf(s.out, "unknown command %q (try help)\n", verb)
	}
	return false
}

// navigate asks the guard for path and renders whatever screen it allows.
func (s *shell) navigate(ctx context.Context, path string) guard.Decision {
	d := s.a.Guard.Navigate(path)
	if d.Redirected && d.Requested != string(guard.RouteRoot) {
		fmt.Fprintf(s.out, "→ %s\n", d.Route)
	}
	s.activate(ctx, d.Route)
	return d
}

// enter makes sure route is the current screen, navigating when needed.
// It reports false when the guard sent the user elsewhere.
func (s *shell) enter(ctx context.Context, route guard.Route) bool {
	if s.a.Guard.Current() == route && s.a.Guard.Resolve(string(route)).Route == route {
		return true
	}
	return s.navigate(ctx, string(route)).Route == route
}

// activate loads what a screen shows when it is opened.
func (s *shell) activate(ctx context.Context, route guard.Route) {
	switch route {
	case guard.RouteLogin:
		fmt.Fprintln(s.out, "Log in with: login <email> <password>  (new here? go /register)")
	case guard.RouteRegister:
		fmt.Fprintln(s.out, "Register with: register <username> <email> <password> <confirm>")
	case guard.RouteDashboard:
		st, err := s.a.Dashboard.Load(ctx)
		if err != nil {
			s.report(err)
			return
		}
		printStats(s.out, st)
	case guard.RouteDocuments:
		docs, err := s.a.Library.Refresh(ctx)
		if err != nil {
			s.report(err)
			return
		}
		printDocuments(s.out, docs)
	case guard.RouteQA:
		if _, loaded := s.a.Library.Documents(); !loaded {
			if _, err := s.a.Library.Refresh(ctx); err != nil {
				s.report(err)
				return
			}
		}
		s.renderWorkspace()
	}
}

func (s *shell) renderWorkspace() {
	v := s.a.Workspace.View()
	if v.Document == nil {
		docs, _ := s.a.Library.Documents()
		fmt.Fprintln(s.out, "No document selected. Pick one with: select <#>")
		printNumbered(s.out, docs)
		return
	}
	fmt.Fprintf(s.out, "Document: %s\n", docLabel(*v.Document))
	if v.Summary != "" {
		fmt.Fprintf(s.out, "Summary:\n%s\n", v.Summary)
	}
	if v.Answer != nil {
		fmt.Fprintf(s.out, "Last answer: %s\n", v.Answer.Text)
	}
	printHistory(s.out, v.History)
}

func printNumbered(out io.Writer, docs []documents.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(out, "(no documents, upload one from /documents)")
		return
	}
	for i, d := range docs {
		fmt.Fprintf(out, "%d. %s\n", i+1, docLabel(d))
	}
}

func (s *shell) login(ctx context.Context, args []string) {
	if !s.enter(ctx, guard.RouteLogin) {
		return
	}
	vals, err := s.collect(args, "Email: ", "Password: ")
	if err != nil {
		s.report(err)
		return
	}
	sess, err := s.a.Auth.Login(ctx, vals[0], vals[1])
	if err != nil {
		s.report(err)
		return
	}
	fmt.Fprintf(s.out, "✓ Logged in as %s\n", sess.User.Username)
	s.navigate(ctx, string(s.a.Guard.Current()))
}

func (s *shell) register(ctx context.Context, args []string) {
	if !s.enter(ctx, guard.RouteRegister) {
		return
	}
	vals, err := s.collect(args, "Username: ", "Email: ", "Password: ", "Confirm password: ")
	if err != nil {
		s.report(err)
		return
	}
	in := auth.RegisterInput{Username: vals[0], Email: vals[1], Password: vals[2], ConfirmPassword: vals[3]}
	sess, err := s.a.Auth.Register(ctx, in)
	if err != nil {
		s.report(err)
		return
	}
	fmt.Fprintf(s.out, "✓ Registered and logged in as %s\n", sess.User.Username)
	s.navigate(ctx, string(s.a.Guard.Current()))
}

// collect uses the given args in order and prompts for the missing ones.
func (s *shell) collect(args []string, labels ...string) ([]string, error) {
	vals := make([]string, len(labels))
	for i, label := range labels {
		if i < len(args) {
			vals[i] = args[i]
			continue
		}
		v, err := ask(s.in, s.out, label)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (s *shell) upload(ctx context.Context, path string) {
	if path == "" {
		fmt.Fprintln(s.out, "usage: upload <file>")
		return
	}
	if !s.enter(ctx, guard.RouteDocuments) {
		return
	}
	f, err := documents.FileFromPath(path)
	if err != nil {
		s.report(err)
		return
	}
	d, err := s.a.Library.Upload(ctx, f)
	if d != nil {
		fmt.Fprintf(s.out, "✓ Document uploaded: %s (%d chunks)\n", d.Filename, d.ChunksCount)
	}
	if err != nil {
		s.report(err)
		return
	}
	docs, _ := s.a.Library.Documents()
	printDocuments(s.out, docs)
}

func (s *shell) deleteDoc(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: delete <id|#>")
		return
	}
	if !s.enter(ctx, guard.RouteDocuments) {
		return
	}
	id, err := s.resolveDoc(args[0])
	if err != nil {
		s.report(err)
		return
	}
	deleted, err := s.a.Library.Delete(ctx, id, func(d documents.Document) bool {
		return confirm(s.in, s.out, fmt.Sprintf("Delete %s?", docLabel(d)))
	})
	if deleted {
		fmt.Fprintln(s.out, "✓ Document deleted")
	}
	if err != nil {
		s.report(err)
		return
	}
	if !deleted {
		fmt.Fprintln(s.out, "Cancelled")
		return
	}
	docs, _ := s.a.Library.Documents()
	printDocuments(s.out, docs)
}

func (s *shell) selectDoc(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "usage: select <id|#>")
		return
	}
	if !s.enter(ctx, guard.RouteQA) {
		return
	}
	id, err := s.resolveDoc(args[0])
	if err != nil {
		s.report(err)
		return
	}
	if _, err := s.a.Workspace.Select(ctx, id); err != nil {
		s.report(err)
	}
	s.renderWorkspace()
}

func (s *shell) askQuestion(ctx context.Context, question string) {
	if !s.enter(ctx, guard.RouteQA) {
		return
	}
	s.a.Workspace.SetQuestion(question)
	ans, err := s.a.Workspace.Ask(ctx)
	if ans != nil {
		fmt.Fprintf(s.out, "A: %s\n", ans.Text)
	}
	if err != nil {
		s.report(err)
	}
}

// resolveDoc accepts a document id or a 1-based position in the cached list.
func (s *shell) resolveDoc(ref string) (string, error) {
	docs, _ := s.a.Library.Documents()
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(docs) {
			return "", gateway.Invalid("document", fmt.Sprintf("No document #%d", n))
		}
		return docs[n-1].ID, nil
	}
	return ref, nil
}

func (s *shell) report(err error) {
	if errors.Is(err, gateway.ErrStale) {
		s.a.Logger.Debug().Err(err).Msg("dropped late result")
		return
	}
	fmt.Fprintln(s.out, "✗ Error:", gateway.UserMessage(err))
}

// sessionChanged runs on the watcher goroutine when another process rewrote
// the session file.
func (s *shell) sessionChanged() {
	before := s.a.Store.Generation()
	if err := s.a.Store.Reload(); err != nil {
		s.a.Logger.Warn().Err(err).Msg("reload session")
	}
	if s.a.Store.Generation() == before {
		return
	}
	s.a.Library.Invalidate()
	s.a.Workspace.Reset()
	if !s.a.Store.IsAuthenticated() {
		s.a.Guard.SignalExpired()
	}
}

func init() {
	rootCmd.AddCommand(shellCmd)
}
