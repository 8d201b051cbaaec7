package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wsp-sniper/config"
	"wsp-sniper/plan"
	"wsp-sniper/timing"
)

const notOpenBody = `{"message":"Регистрация не началась"}`

type localSource struct{}

func (localSource) Query(context.Context, string) (time.Time, error) {
	return time.Now(), nil
}

// fakeWSP serves the subset of the registration API the commands use.
type fakeWSP struct {
	*httptest.Server

	mu       sync.Mutex
	saves    map[string][][]int
	saveCode func(subject string, n int) (int, string)
}

func newFakeWSP(t *testing.T, saveCode func(subject string, n int) (int, string)) *fakeWSP {
	t.Helper()
	f := &fakeWSP{saves: map[string][][]int{}, saveCode: saveCode}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("username") != "student" || r.FormValue("password") != "pw" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"id": 42}`))
	})
	mux.HandleFunc("GET /finance/accruals/42", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ACCRUALS":[{"id":101},{"id":102}]}`))
	})
	mux.HandleFunc("GET /registration/student/42/schedule/101", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"SEMESTER_SUBJECT": {"id": 101, "name": "Algorithms", "code": "CSCI2101", "formula": "1/0/1"},
			"SCHEDULES": [
				{"id": 11, "stream": "1", "group": "1", "lessonTypeId": 1, "teacher": "Smith", "weekDay": "Mon", "beginTime": 9},
				{"id": 12, "stream": "1", "group": "1", "lessonTypeId": 3, "teacher": "Jones", "weekDay": "Tue", "beginTime": 10.5}
			]
		}`))
	})
	mux.HandleFunc("GET /registration/student/42/schedule/102", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"SEMESTER_SUBJECT": {"id": 102, "name": "Physics"}, "SCHEDULES": []}`))
	})
	mux.HandleFunc("POST /registration/student/42/schedule/{sid}/save", func(w http.ResponseWriter, r *http.Request) {
		var ids []int
		_ = json.NewDecoder(r.Body).Decode(&ids)
		sid := r.PathValue("sid")

		f.mu.Lock()
		f.saves[sid] = append(f.saves[sid], ids)
		n := len(f.saves[sid])
		f.mu.Unlock()

		code, body := f.saveCode(sid, n)
		w.WriteHeader(code)
		w.Write([]byte(body))
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeWSP) savesFor(subject string) [][]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[subject]
}

// testEnv points every command at the fake server and a temp directory.
func testEnv(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(config.EnvVar("base_url"), baseURL)
	t.Setenv(config.EnvVar("username"), "student")
	t.Setenv(config.EnvVar("password"), "pw")
	t.Setenv(config.EnvVar("desired_time_local"), "00:00:00")
	t.Setenv(config.EnvVar("log_file"), filepath.Join(dir, "wsp_sniper.log"))
	t.Setenv(config.EnvVar("plan_file"), filepath.Join(dir, "saved_plan.json"))

	prev := newTimeSource
	newTimeSource = func(*config.Config) timing.TimeSource { return localSource{} }
	t.Cleanup(func() { newTimeSource = prev })
	return dir
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRun_SavedPlanWithYes(t *testing.T) {
	// Given a saved plan with one stale subject and a server that opens on the
	// second write
	srv := newFakeWSP(t, func(_ string, n int) (int, string) {
		if n == 1 {
			return http.StatusInternalServerError, notOpenBody
		}
		return http.StatusOK, `{"ok":true}`
	})
	dir := testEnv(t, srv.URL)
	planFile := filepath.Join(dir, "saved_plan.json")
	require.NoError(t, plan.Save(planFile, plan.New(
		plan.Entry{SubjectID: 101, LessonIDs: []int{11, 12}},
		plan.Entry{SubjectID: 999, LessonIDs: []int{1}},
	)))
	reportFile := filepath.Join(dir, "report.jsonl")

	// When running without prompts
	out, err := execute(t, "", "run", "--yes",
		"--request-delay", "0", "--retry-delay", "10ms", "--report-file", reportFile)

	// Then only the available subject is registered, after one retry
	require.NoError(t, err)
	assert.Equal(t, [][]int{{11, 12}, {11, 12}}, srv.savesFor("101"))
	assert.Empty(t, srv.savesFor("999"))
	assert.Contains(t, out, "[WSP Sniper Execution Log]")
	assert.Contains(t, out, "subject 101")
	assert.Contains(t, out, "SUCCESS")

	raw, err := os.ReadFile(reportFile)
	require.NoError(t, err)
	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(raw), &record))
	assert.Equal(t, "SUCCESS", record["verdict"])
}

func TestRun_InteractiveSelection(t *testing.T) {
	// Given no saved plan
	srv := newFakeWSP(t, func(string, int) (int, string) { return http.StatusOK, "{}" })
	dir := testEnv(t, srv.URL)

	// When the user picks stream 1 with L1 P1 and confirms the blueprint
	out, err := execute(t, "1\nL1 P1\ny\n", "run", "--request-delay", "0")

	// Then the plan is saved and registered; the empty subject is skipped
	require.NoError(t, err)
	assert.Contains(t, out, "Selection Validated.")
	assert.Contains(t, out, "No schedule available.")
	assert.Contains(t, out, "Confirm registration blueprint?")
	assert.Equal(t, [][]int{{11, 12}}, srv.savesFor("101"))

	saved, err := plan.Load(filepath.Join(dir, "saved_plan.json"))
	require.NoError(t, err)
	ids, ok := saved.Get(101)
	require.True(t, ok)
	assert.Equal(t, []int{11, 12}, ids)
	assert.False(t, saved.Has(102))
}

func TestRun_DeclinedBlueprintSendsNothing(t *testing.T) {
	srv := newFakeWSP(t, func(string, int) (int, string) { return http.StatusOK, "{}" })
	dir := testEnv(t, srv.URL)
	require.NoError(t, plan.Save(filepath.Join(dir, "saved_plan.json"),
		plan.New(plan.Entry{SubjectID: 101, LessonIDs: []int{11}})))

	// When the saved plan is accepted but the blueprint is declined
	_, err := execute(t, "y\nn\n", "run")

	require.NoError(t, err)
	assert.Empty(t, srv.savesFor("101"))
}

func TestRun_SafetyStop(t *testing.T) {
	// Given a server that rate limits registration writes
	srv := newFakeWSP(t, func(string, int) (int, string) {
		return http.StatusTooManyRequests, "slow down"
	})
	dir := testEnv(t, srv.URL)
	require.NoError(t, plan.Save(filepath.Join(dir, "saved_plan.json"),
		plan.New(plan.Entry{SubjectID: 101, LessonIDs: []int{11, 12}})))

	out, err := execute(t, "", "run", "--yes")

	// Then the subject fails once and the report names the reason
	require.NoError(t, err)
	assert.Len(t, srv.savesFor("101"), 1)
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "HTTP 429 detected")
}

func TestRun_BadCredentials(t *testing.T) {
	srv := newFakeWSP(t, func(string, int) (int, string) { return http.StatusOK, "{}" })
	testEnv(t, srv.URL)
	t.Setenv(config.EnvVar("password"), "wrong")

	_, err := execute(t, "", "run", "--yes")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSelect_SavesPlan(t *testing.T) {
	srv := newFakeWSP(t, func(string, int) (int, string) { return http.StatusOK, "{}" })
	dir := testEnv(t, srv.URL)

	out, err := execute(t, "1\nL1\ny\nL1 P1\n", "select")

	// Then the invalid first choice is re-asked and the valid one saved
	require.NoError(t, err)
	assert.Contains(t, out, "Validation Error:")
	saved, err := plan.Load(filepath.Join(dir, "saved_plan.json"))
	require.NoError(t, err)
	ids, _ := saved.Get(101)
	assert.Equal(t, []int{11, 12}, ids)
	assert.Empty(t, srv.savesFor("101"))
}

func TestPlan_ShowAndClear(t *testing.T) {
	dir := testEnv(t, "http://127.0.0.1:1")
	planFile := filepath.Join(dir, "saved_plan.json")

	out, err := execute(t, "", "plan", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved plan")

	require.NoError(t, plan.Save(planFile, plan.New(plan.Entry{SubjectID: 7, LessonIDs: []int{3, 1}})))
	out, err = execute(t, "", "plan", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"7"`)

	_, err = execute(t, "", "plan", "clear")
	require.NoError(t, err)
	_, statErr := os.Stat(planFile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSetup_WritesEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "generated.env")

	// When the first time answer is invalid and the second is valid
	out, err := execute(t, "student\nsecret\n25:00:00\n09:59:59.5\n", "setup", "--output", path)

	// Then the file is written with the corrected time
	require.NoError(t, err)
	assert.Contains(t, out, "Invalid time format.")

	cfg, err := config.Load(config.Options{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, "student", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, "09:59:59.5", cfg.DesiredTimeLocal)
}

func TestSetup_KeepsExistingFileWhenDeclined(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WSP_USERNAME=old\n"), 0o600))

	_, err := execute(t, "n\n", "setup", "--output", path)

	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "WSP_USERNAME=old\n", string(raw))
}

func TestClockCheck(t *testing.T) {
	testEnv(t, config.DefaultBaseURL)

	out, err := execute(t, "", "clockcheck", "--probes", "2", "--lead", "20ms")

	require.NoError(t, err)
	assert.Contains(t, out, "Clock offset vs")
	assert.Contains(t, out, "[Probe 1]")
	assert.Contains(t, out, "[Probe 2]")
	assert.Contains(t, out, "Precision wake")
}
