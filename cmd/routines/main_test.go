package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/mark3labs/mcp-go/mcp"

	"routines/runtime-go/pkg/driver"
	"routines/runtime-go/pkg/engine"
	"routines/runtime-go/pkg/registry"
	"routines/runtime-go/pkg/runtime"
	"routines/runtime-go/pkg/store"
)

const demoManifest = `skill: demo
routines:
  - name: add
    description: Adds two numbers
    params: [a, b]
    source: |
      return a + b
  - name: survey
    source: |
      color = ask_user("favourite color?")
      print("noted " + color)
      return color
  - name: broken
    source: |
      x = 1
      return x + "a"
`

type result struct {
	code   int
	stdout string
	stderr string
}

func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func enterDir(t *testing.T, dir string) {
	t.Helper()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if chdirErr := os.Chdir(oldWD); chdirErr != nil {
			t.Fatalf("restore working directory: %v", chdirErr)
		}
	})
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func demoProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, driver.ManifestFileName), demoManifest)
	enterDir(t, dir)
	return dir
}

func TestListShowsRegisteredRoutines(t *testing.T) {
	demoProject(t)
	res := runCLI(t, "", "list")
	if res.code != 0 {
		t.Fatalf("list exit code %d, stderr: %s", res.code, res.stderr)
	}
	for _, want := range []string{"NAME", "demo.add", "a,b", "Adds two numbers", "demo.survey"} {
		if !strings.Contains(res.stdout, want) {
			t.Fatalf("list output missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestCheckReportsBrokenPrograms(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, driver.ManifestFileName), "routines:\n  - name: ok\n    source: \"return 1\\n\"\n  - name: bad\n    source: \"x = (\\n\"\n")
	enterDir(t, dir)

	res := runCLI(t, "", "check")
	if res.code != 1 {
		t.Fatalf("check exit code %d, want 1", res.code)
	}
	if !strings.Contains(res.stdout, "ok   ok") {
		t.Fatalf("expected ok line, got %q", res.stdout)
	}
	if !strings.Contains(res.stderr, "FAIL bad") || !strings.Contains(res.stderr, "1 problem(s) found") {
		t.Fatalf("unexpected check diagnostics: %q", res.stderr)
	}
}

func TestCheckWithoutManifests(t *testing.T) {
	enterDir(t, t.TempDir())
	res := runCLI(t, "", "check")
	if res.code != 1 || !strings.Contains(res.stderr, "no manifests found") {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestRunCompletesWithArguments(t *testing.T) {
	demoProject(t)
	res := runCLI(t, "", "run", "demo.add", "2", "b=3")
	if res.code != 0 {
		t.Fatalf("run exit code %d, stderr: %s", res.code, res.stderr)
	}
	if strings.TrimSpace(res.stdout) != "5" {
		t.Fatalf("run output = %q, want 5", res.stdout)
	}
}

func TestRunAnswersQuestionsFromStdin(t *testing.T) {
	demoProject(t)
	res := runCLI(t, "teal\n", "run", "demo.survey")
	if res.code != 0 {
		t.Fatalf("run exit code %d, stderr: %s", res.code, res.stderr)
	}
	for _, want := range []string{"favourite color? ", "noted teal", "teal\n"} {
		if !strings.Contains(res.stdout, want) {
			t.Fatalf("run output missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestRunReportsRuntimeErrors(t *testing.T) {
	demoProject(t)
	res := runCLI(t, "", "run", "demo.broken")
	if res.code != 1 {
		t.Fatalf("run exit code %d, want 1", res.code)
	}
	if !strings.Contains(res.stderr, "^") || !strings.Contains(res.stderr, `return x + "a"`) {
		t.Fatalf("expected caret diagnostic, got %q", res.stderr)
	}
	if strings.Contains(res.stderr, "error: reported") {
		t.Fatalf("silent error leaked: %q", res.stderr)
	}
}

func TestRunUnknownRoutineSuggests(t *testing.T) {
	demoProject(t)
	res := runCLI(t, "", "run", "demo.ad")
	if res.code != 1 || !strings.Contains(res.stderr, "demo.add") {
		t.Fatalf("expected suggestion, got %+v", res)
	}
}

func TestPausedSessionSurvivesBetweenInvocations(t *testing.T) {
	demoProject(t)

	res := runCLI(t, "", "run", "demo.survey", "--no-input")
	if res.code != 0 {
		t.Fatalf("run exit code %d, stderr: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stderr, `paused: demo.survey is waiting on "favourite color?"`) {
		t.Fatalf("expected pause notice, got %q", res.stderr)
	}

	res = runCLI(t, "", "stack")
	if res.code != 0 || !strings.Contains(res.stdout, "* 0") || !strings.Contains(res.stdout, "demo.survey") {
		t.Fatalf("unexpected stack output %+v", res)
	}

	res = runCLI(t, "", "run", "demo.add", "1", "2")
	if res.code != 1 || !strings.Contains(res.stderr, "paused routine") {
		t.Fatalf("expected active session rejection, got %+v", res)
	}

	res = runCLI(t, "", "resume", "green", "--no-input")
	if res.code != 0 {
		t.Fatalf("resume exit code %d, stderr: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stdout, "noted green") || !strings.HasSuffix(res.stdout, "green\n") {
		t.Fatalf("unexpected resume output %q", res.stdout)
	}

	res = runCLI(t, "", "stack")
	if !strings.Contains(res.stdout, "session default has no frames") {
		t.Fatalf("expected empty stack, got %q", res.stdout)
	}
}

func TestRunLeavesSessionPausedAtEndOfInput(t *testing.T) {
	demoProject(t)
	res := runCLI(t, "", "run", "demo.survey", "--session", "alice")
	if res.code != 0 {
		t.Fatalf("run exit code %d, stderr: %s", res.code, res.stderr)
	}
	if !strings.Contains(res.stderr, "routines resume VALUE --session alice") {
		t.Fatalf("expected resume hint, got %q", res.stderr)
	}

	res = runCLI(t, "", "stack", "--all")
	if strings.TrimSpace(res.stdout) != "alice" {
		t.Fatalf("stack --all = %q, want alice", res.stdout)
	}

	res = runCLI(t, "", "cancel", "--session", "alice")
	if res.code != 0 || !strings.Contains(res.stdout, "cancelled 1 frame(s)") {
		t.Fatalf("unexpected cancel result %+v", res)
	}
	res = runCLI(t, "", "resume", "x", "--session", "alice")
	if res.code != 1 || !strings.Contains(res.stderr, "no paused routine") {
		t.Fatalf("expected resume to fail after cancel, got %+v", res)
	}
}

func TestResumeParsesJSONAnswers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, driver.ManifestFileName), "routines:\n  - name: double\n    source: |\n      n = ask_user(\"n?\")\n      return n * 2\n")
	enterDir(t, dir)

	if res := runCLI(t, "", "run", "double", "--no-input"); res.code != 0 {
		t.Fatalf("run exit code %d, stderr: %s", res.code, res.stderr)
	}
	res := runCLI(t, "", "resume", "21", "--json")
	if res.code != 0 || strings.TrimSpace(res.stdout) != "42" {
		t.Fatalf("unexpected resume result %+v", res)
	}
}

func TestConfigSelectsSQLiteStore(t *testing.T) {
	dir := demoProject(t)
	writeFile(t, filepath.Join(dir, driver.ConfigFileName), "store:\n  backend: sqlite\n  path: state/frames.db\nlog:\n  format: json\n")

	if res := runCLI(t, "", "run", "demo.survey", "--no-input"); res.code != 0 {
		t.Fatalf("run exit code %d, stderr: %s", res.code, res.stderr)
	}
	if _, err := os.Stat(filepath.Join(dir, "state", "frames.db")); err != nil {
		t.Fatalf("expected sqlite database: %v", err)
	}
	res := runCLI(t, "", "resume", "red", "--no-input")
	if res.code != 0 || !strings.HasSuffix(res.stdout, "red\n") {
		t.Fatalf("unexpected resume result %+v", res)
	}
}

func TestFetchRegistersGitSources(t *testing.T) {
	remote := t.TempDir()
	writeFile(t, filepath.Join(remote, driver.ManifestFileName), "skill: shared\nroutines:\n  - name: greet\n    params: [who]\n    source: \"return 'hi ' + who\\n\"\n")
	repo, err := git.PlainInit(remote, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if _, err := worktree.Add(driver.ManifestFileName); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := worktree.Commit("init", &git.CommitOptions{
		Author: &object.Signature{Name: "Routines", Email: "routines@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	project := t.TempDir()
	writeFile(t, filepath.Join(project, driver.ConfigFileName), "sources:\n  - name: shared\n    git: "+remote+"\n    branch: master\n")
	enterDir(t, project)

	res := runCLI(t, "", "list")
	if res.code != 1 || !strings.Contains(res.stderr, "run `routines fetch`") {
		t.Fatalf("expected unfetched source error, got %+v", res)
	}

	res = runCLI(t, "", "fetch")
	if res.code != 0 || !strings.HasPrefix(res.stdout, "shared ") {
		t.Fatalf("unexpected fetch result %+v", res)
	}
	if _, err := os.Stat(filepath.Join(project, driver.DefaultCacheDir, driver.LockFileName)); err != nil {
		t.Fatalf("expected lock file: %v", err)
	}

	res = runCLI(t, "", "run", "shared.greet", "who=bo")
	if res.code != 0 || strings.TrimSpace(res.stdout) != "hi bo" {
		t.Fatalf("unexpected run result %+v", res)
	}
}

func TestParseCallArgs(t *testing.T) {
	args, kwargs, err := parseCallArgs([]string{"1", `"two"`, "plain", "[1, 2]", "k=3", "s=hello", "j={\"a\": true}"})
	if err != nil {
		t.Fatalf("parseCallArgs: %v", err)
	}
	want := []string{"1", "'two'", "'plain'", "[1, 2]"}
	if len(args) != len(want) {
		t.Fatalf("got %d args, want %d", len(args), len(want))
	}
	for i, w := range want {
		if got := runtime.Repr(args[i]); got != w {
			t.Fatalf("arg %d = %s, want %s", i, got, w)
		}
	}
	if runtime.Repr(kwargs["k"]) != "3" || runtime.Repr(kwargs["s"]) != "'hello'" || runtime.Repr(kwargs["j"]) != "{'a': True}" {
		t.Fatalf("unexpected kwargs %v", kwargs)
	}

	cases := []struct {
		name   string
		tokens []string
		msg    string
	}{
		{"duplicate", []string{"a=1", "a=2"}, "more than once"},
		{"positional after keyword", []string{"a=1", "2"}, "follows keyword"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := parseCallArgs(tc.tokens); err == nil || !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("expected %q error, got %v", tc.msg, err)
			}
		})
	}
}

func TestAnswerValue(t *testing.T) {
	v, err := answerValue("42", false)
	if err != nil || runtime.Repr(v) != "'42'" {
		t.Fatalf("plain answer = %v, %v", v, err)
	}
	v, err = answerValue("42", true)
	if err != nil || runtime.Repr(v) != "42" {
		t.Fatalf("json answer = %v, %v", v, err)
	}
	if _, err := answerValue("nope", true); err == nil {
		t.Fatalf("expected invalid JSON error")
	}
}

func newTestToolServer(t *testing.T) *toolServer {
	t.Helper()
	reg := registry.New()
	routines := []*registry.Routine{
		{Name: "survey", Skill: "demo", Kind: registry.KindProgram, Source: "c = ask_user('color?')\nprint('got ' + c)\nreturn {'color': c}\n"},
		{Name: "add", Skill: "demo", Params: []string{"a", "b"}, Kind: registry.KindProgram, Source: "return a + b\n"},
	}
	for _, r := range routines {
		if err := reg.Register(r); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	tools := newToolServer()
	tools.engine = engine.New(reg, store.NewMemory(), engine.WithSink(tools))
	return tools
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("tool handler: %v", err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("tool returned no content")
	}
	switch content := res.Content[0].(type) {
	case mcp.TextContent:
		return content.Text, res.IsError
	case *mcp.TextContent:
		return content.Text, res.IsError
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return "", false
}

func decodeOutcome(t *testing.T, text string) toolOutcome {
	t.Helper()
	var out toolOutcome
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		t.Fatalf("decode outcome %q: %v", text, err)
	}
	return out
}

func outcomeValue(t *testing.T, out toolOutcome) string {
	t.Helper()
	v, err := runtime.UnmarshalValue(out.Value)
	if err != nil {
		t.Fatalf("decode value %s: %v", out.Value, err)
	}
	return runtime.Repr(v)
}

func TestToolServerRoundTrip(t *testing.T) {
	tools := newTestToolServer(t)

	text, isErr := callTool(t, tools.handleStart, map[string]any{"name": "demo.survey", "session": "s1"})
	if isErr {
		t.Fatalf("start failed: %s", text)
	}
	out := decodeOutcome(t, text)
	if out.Status != "PAUSED" || out.Prompt != "color?" {
		t.Fatalf("unexpected start outcome %+v", out)
	}

	text, _ = callTool(t, tools.handleStack, map[string]any{"session": "s1"})
	if !strings.Contains(text, `"routine": "demo.survey"`) {
		t.Fatalf("unexpected stack %s", text)
	}

	text, isErr = callTool(t, tools.handleResume, map[string]any{"value": "blue", "session": "s1"})
	if isErr {
		t.Fatalf("resume failed: %s", text)
	}
	out = decodeOutcome(t, text)
	if out.Status != "COMPLETED" || outcomeValue(t, out) != "{'color': 'blue'}" {
		t.Fatalf("unexpected resume outcome %+v", out)
	}
	var sawMessage bool
	for _, ev := range out.Events {
		if ev.Kind == "message" && ev.Text == "got blue" {
			sawMessage = true
		}
	}
	if !sawMessage {
		t.Fatalf("expected message event, got %+v", out.Events)
	}
}

func TestToolServerArgumentsAndErrors(t *testing.T) {
	tools := newTestToolServer(t)

	text, _ := callTool(t, tools.handleStart, map[string]any{"name": "demo.add", "arguments": `{"a": 2, "b": 5}`})
	if out := decodeOutcome(t, text); outcomeValue(t, out) != "7" || out.Session != defaultSession {
		t.Fatalf("unexpected add outcome %+v", out)
	}

	if text, isErr := callTool(t, tools.handleStart, map[string]any{"name": "demo.add", "arguments": "[1]"}); !isErr || !strings.Contains(text, "JSON object") {
		t.Fatalf("expected argument error, got %q", text)
	}
	if _, isErr := callTool(t, tools.handleStart, map[string]any{}); !isErr {
		t.Fatalf("expected missing name to fail")
	}
	if text, isErr := callTool(t, tools.handleResume, map[string]any{"value": "x"}); !isErr || !strings.Contains(text, "no paused routine") {
		t.Fatalf("expected resume error, got %q", text)
	}

	if _, isErr := callTool(t, tools.handleStart, map[string]any{"name": "demo.add", "arguments": `{"a": 2}`}); !isErr {
		t.Fatalf("expected binding failure")
	}

	callTool(t, tools.handleStart, map[string]any{"name": "demo.survey"})
	text, _ = callTool(t, tools.handleCancel, map[string]any{})
	if !strings.Contains(text, `"cancelled": 1`) {
		t.Fatalf("unexpected cancel result %s", text)
	}

	text, _ = callTool(t, tools.handleList, nil)
	if !strings.Contains(text, `"name": "demo.add"`) || !strings.Contains(text, `"params": [`) {
		t.Fatalf("unexpected list %s", text)
	}
}
