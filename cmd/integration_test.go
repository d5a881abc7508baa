package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/KaramelBytes/docqa-cli/internal/backendtest"
	"github.com/KaramelBytes/docqa-cli/internal/gateway"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags puts every flag of c and its children back to its default so
// values do not leak between invocations.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execCmd runs the root command with args and stdin, returning stdout.
func execCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(t, "", args...)
	if err != nil {
		t.Fatalf("command %v failed: %v\n%s", args, err, out)
	}
	return out
}

// isolate points HOME at a temp dir and the client at a fresh fake backend.
func isolate(t *testing.T) (*backendtest.Server, string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	srv := backendtest.New(t)
	t.Setenv("DOCQA_API_BASE_URL", srv.URL)
	srv.AddUser("alice", "a@b.com", "secret1")
	return srv, home
}

var uploadedID = regexp.MustCompile(`id=(\S+)`)

func uploadFile(t *testing.T, home, name string, size int) string {
	t.Helper()
	path := filepath.Join(home, name)
	if err := os.WriteFile(path, []byte(strings.Repeat("lorem ipsum ", size/12+1)[:size]), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	out := runCmd(t, "docs", "upload", path)
	m := uploadedID.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no document id in upload output: %q", out)
	}
	return m[1]
}

func TestCLI_Login_Upload_Ask_History(t *testing.T) {
	_, home := isolate(t)

	out := runCmd(t, "login", "-e", "a@b.com", "-p", "secret1")
	if !strings.Contains(out, "Logged in as alice") {
		t.Fatalf("unexpected login output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(home, ".docqa", "session.json")); err != nil {
		t.Fatalf("session not persisted: %v", err)
	}

	id := uploadFile(t, home, "notes.txt", 2048)
	if out := runCmd(t, "docs", "list"); !strings.Contains(out, "notes.txt") || !strings.Contains(out, "3 chunks") {
		t.Fatalf("document missing from list: %q", out)
	}

	out = runCmd(t, "ask", id, "What", "is", "this", "about?")
	if !strings.Contains(out, "A: Based on notes.txt: What is this about?") {
		t.Fatalf("unexpected answer: %q", out)
	}
	out = runCmd(t, "history", "--doc", id)
	if !strings.Contains(out, "Q: What is this about?") {
		t.Fatalf("history missing record: %q", out)
	}
	out = runCmd(t, "dashboard")
	if !strings.Contains(out, "Documents: 1") || !strings.Contains(out, "Questions: 1") {
		t.Fatalf("unexpected dashboard: %q", out)
	}
	if out := runCmd(t, "summarize", id); !strings.Contains(out, "Summary #1 of notes.txt") {
		t.Fatalf("unexpected summary: %q", out)
	}
}

func TestCLI_UploadRejectedBeforeNetwork(t *testing.T) {
	srv, home := isolate(t)
	png := filepath.Join(home, "cat.png")
	if err := os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := execCmd(t, "", "docs", "upload", png)
	if err == nil {
		t.Fatalf("expected upload of png to fail")
	}
	if got := gateway.UserMessage(err); got != "Only PDF, DOCX, and TXT files are allowed" {
		t.Fatalf("unexpected message: %q", got)
	}
	if _, err := execCmd(t, "", "ask", "some-doc", "   "); !gateway.IsValidation(err) {
		t.Fatalf("expected validation error for blank question, got %v", err)
	}
	if n := srv.TotalHits(); n != 0 {
		t.Fatalf("expected no backend calls, got %d", n)
	}
}

func TestCLI_ExpiredSessionIsCleared(t *testing.T) {
	srv, home := isolate(t)
	runCmd(t, "login", "-e", "a@b.com", "-p", "secret1")
	srv.ExpireSessions()

	_, err := execCmd(t, "", "docs", "list")
	if !gateway.IsAuthExpired(err) {
		t.Fatalf("expected auth expiry, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".docqa", "session.json")); !os.IsNotExist(err) {
		t.Fatalf("session file should be gone, stat err=%v", err)
	}
	if out := runCmd(t, "whoami"); !strings.Contains(out, "Not logged in") {
		t.Fatalf("unexpected whoami output: %q", out)
	}
	if _, err := execCmd(t, "", "docs", "list"); err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected local not-logged-in error, got %v", err)
	}
}

func TestCLI_DeleteAsksForConfirmation(t *testing.T) {
	srv, home := isolate(t)
	runCmd(t, "login", "-e", "a@b.com", "-p", "secret1")
	id := uploadFile(t, home, "a.txt", 100)

	out, err := execCmd(t, "n\n", "docs", "delete", id)
	if err != nil || !strings.Contains(out, "Delete a.txt") || !strings.Contains(out, "Cancelled") {
		t.Fatalf("expected cancelled delete, got err=%v out=%q", err, out)
	}
	if n := srv.Hits("DELETE", "/api/documents/:id"); n != 0 {
		t.Fatalf("declined delete reached backend %d times", n)
	}

	runCmd(t, "docs", "delete", "--yes", id)
	if out := runCmd(t, "docs", "list"); !strings.Contains(out, "(no documents)") {
		t.Fatalf("document still listed: %q", out)
	}
}

func TestCLI_WhoamiRemote(t *testing.T) {
	isolate(t)
	runCmd(t, "register", "-u", "bob", "-e", "bob@example.com", "-p", "hunter22", "--confirm", "hunter22")
	out := runCmd(t, "whoami", "--remote")
	for _, want := range []string{"username: bob", "email: bob@example.com", "token_expires:", "Session accepted"} {
		if !strings.Contains(out, want) {
			t.Fatalf("whoami output missing %q: %q", want, out)
		}
	}
	runCmd(t, "logout")
	if out := runCmd(t, "whoami"); !strings.Contains(out, "Not logged in") {
		t.Fatalf("unexpected whoami after logout: %q", out)
	}
}

func TestCLI_RegisterMismatchIsLocal(t *testing.T) {
	srv, _ := isolate(t)
	_, err := execCmd(t, "", "register", "-u", "bob", "-e", "bob@example.com", "-p", "hunter22", "--confirm", "hunter23")
	if got := gateway.UserMessage(err); got != "Passwords do not match" {
		t.Fatalf("unexpected error: %v", err)
	}
	if srv.TotalHits() != 0 {
		t.Fatalf("mismatched passwords reached the backend")
	}
}

func TestCLI_ConfigSetShow(t *testing.T) {
	isolate(t)
	runCmd(t, "config", "set", "http_timeout_sec", "30")
	runCmd(t, "config", "set", "log_format", "json")
	out := runCmd(t, "config", "show")
	if !strings.Contains(out, "http_timeout_sec: 30") || !strings.Contains(out, "log_format: json") {
		t.Fatalf("config not saved: %q", out)
	}
	if _, err := execCmd(t, "", "config", "set", "session_backend", "redis"); err == nil {
		t.Fatalf("expected invalid backend to be rejected")
	}
}

func TestCLI_Health(t *testing.T) {
	isolate(t)
	if out := runCmd(t, "health"); !strings.Contains(out, "healthy") {
		t.Fatalf("unexpected health output: %q", out)
	}
}

func TestShell_GuardedScreens(t *testing.T) {
	_, home := isolate(t)
	doc := filepath.Join(home, "guide.txt")
	if err := os.WriteFile(doc, []byte(strings.Repeat("guide text ", 50)), 0o644); err != nil {
		t.Fatal(err)
	}
	script := strings.Join([]string{
		"go /qa",
		"login a@b.com secret1",
		"upload " + doc,
		"select 1",
		"ask What is this?",
		"summarize",
		"stats",
		"logout",
		"go /documents",
		"exit",
	}, "\n") + "\n"

	out, err := execCmd(t, script, "shell")
	if err != nil {
		t.Fatalf("shell failed: %v\n%s", err, out)
	}
	for _, want := range []string{
		"→ /login",
		"✓ Logged in as alice",
		"✓ Document uploaded: guide.txt",
		"Document: guide.txt",
		"A: Based on guide.txt: What is this?",
		"Summary #1 of guide.txt",
		"Questions: 1",
		"✓ Logged out",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("shell output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "→ /login") < 2 {
		t.Fatalf("protected screen after logout should redirect to login:\n%s", out)
	}
}

func TestShell_LoginFromProtectedScreenKeepsSession(t *testing.T) {
	isolate(t)
	script := strings.Join([]string{
		"login a@b.com secret1",
		"stats",
		"login a@b.com wrongpw",
		"register bob b@c.com secret2 secret2",
		"whoami",
		"exit",
	}, "\n") + "\n"

	out, err := execCmd(t, script, "shell")
	if err != nil {
		t.Fatalf("shell failed: %v\n%s", err, out)
	}
	if strings.Contains(out, "Invalid credentials") {
		t.Fatalf("login from the dashboard should not reach the backend:\n%s", out)
	}
	if strings.Contains(out, "Session expired") {
		t.Fatalf("session should survive:\n%s", out)
	}
	if !strings.Contains(out, "alice <a@b.com>") {
		t.Fatalf("whoami should still report alice:\n%s", out)
	}
	if strings.Count(out, "→ /dashboard") < 2 {
		t.Fatalf("login and register screens should redirect to the dashboard:\n%s", out)
	}
}
