package runner

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velocitest/velocitest/packages/core/config"
	"github.com/velocitest/velocitest/packages/engine"
	"github.com/velocitest/velocitest/packages/history"
	"github.com/velocitest/velocitest/packages/output"
	"github.com/velocitest/velocitest/packages/plugin"
	"github.com/velocitest/velocitest/packages/result"
	"github.com/velocitest/velocitest/packages/schedule"
)

// stubLauncher executes plans without interpreter processes. Statuses are
// keyed by the test function name.
type stubLauncher struct {
	mu       sync.Mutex
	statuses map[string]string
	runs     []string
}

func (l *stubLauncher) Launch(ctx context.Context, workerID int) (engine.Session, error) {
	return &stubSession{launcher: l}, nil
}

type stubSession struct {
	launcher *stubLauncher
}

func (s *stubSession) Warm(ctx context.Context) error { return nil }

func (s *stubSession) Run(ctx context.Context, req *engine.RunRequest) (*engine.RunResponse, error) {
	s.launcher.mu.Lock()
	defer s.launcher.mu.Unlock()
	s.launcher.runs = append(s.launcher.runs, req.ID)

	status := s.launcher.statuses[req.Func]
	if status == "" {
		status = "passed"
	}
	return &engine.RunResponse{Status: status, DurationMs: 1}, nil
}

func (s *stubSession) Teardown(ctx context.Context, keys []string) ([]engine.TeardownFailure, error) {
	return nil, nil
}

func (s *stubSession) Close() []engine.TeardownFailure { return nil }

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func testConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Testpaths = []string{root}
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	cfg.HistoryDB = filepath.Join(t.TempDir(), "history.db")
	return cfg
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

const sampleTree = `
import pytest

def test_pass():
    assert True

@pytest.mark.parametrize("n", [1, 2])
def test_each(n):
    assert n > 0

@pytest.mark.skip(reason="flaky")
def test_skipped():
    pass

def test_fail():
    assert False
`

func TestRunEndToEnd(t *testing.T) {
	root := writeTree(t, map[string]string{"test_sample.py": sampleTree})
	cfg := testConfig(t, root)
	launcher := &stubLauncher{statuses: map[string]string{"test_fail": "failed"}}

	r := New(cfg, WithLogger(quietLogger()), WithLauncher(launcher))
	report, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Collected, "parametrize expands to two items")
	assert.Equal(t, schedule.InProcess, report.Strategy)
	assert.Equal(t, 3, report.Summary.Counts.Passed)
	assert.Equal(t, 1, report.Summary.Counts.Failed)
	assert.Equal(t, 1, report.Summary.Counts.Skipped)
	assert.Equal(t, 1, report.ExitCode())

	// The skipped test never reached a worker.
	assert.Len(t, launcher.runs, 4)

	// The run landed in history.
	store, err := history.Open(cfg.HistoryDB)
	require.NoError(t, err)
	defer store.Close()
	last, ok, err := store.LastRun()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, last.Counts.Total)
}

func TestRunAllGreenExitsZero(t *testing.T) {
	root := writeTree(t, map[string]string{"test_ok.py": "def test_ok():\n    assert True\n"})
	cfg := testConfig(t, root)

	r := New(cfg, WithLogger(quietLogger()), WithLauncher(&stubLauncher{statuses: map[string]string{}}))
	report, err := r.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ExitCode())
}

func TestRunStrictXFailConfig(t *testing.T) {
	root := writeTree(t, map[string]string{"test_x.py": `
import pytest

@pytest.mark.xfail
def test_surprise():
    assert True
`})
	cfg := testConfig(t, root)
	cfg.StrictXFail = config.BoolPtr(true)

	launcher := &stubLauncher{statuses: map[string]string{"test_surprise": "xpassed"}}
	r := New(cfg, WithLogger(quietLogger()), WithLauncher(launcher))
	report, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, result.Failed, report.Results[0].Outcome)
	assert.Equal(t, 1, report.ExitCode())
}

func TestRunNothingCollectedWithScanErrorsExitsFatal(t *testing.T) {
	root := writeTree(t, map[string]string{"test_broken.py": "def (oops):\n    pass\n"})
	cfg := testConfig(t, root)

	r := New(cfg, WithLogger(quietLogger()), WithLauncher(&stubLauncher{}))
	report, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Collected)
	require.NotEmpty(t, report.ScanErrors)
	assert.Equal(t, 2, report.ExitCode(), "an unparsable suite never exits green")
}

func TestRunScanErrorsWithSurvivingTestsExitNormally(t *testing.T) {
	root := writeTree(t, map[string]string{
		"test_broken.py": "def (oops):\n    pass\n",
		"test_ok.py":     "def test_ok():\n    assert True\n",
	})
	cfg := testConfig(t, root)

	r := New(cfg, WithLogger(quietLogger()), WithLauncher(&stubLauncher{statuses: map[string]string{}}))
	report, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Collected)
	require.NotEmpty(t, report.ScanErrors)
	assert.Equal(t, 0, report.ExitCode())
}

func TestLauncherForInjectsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("DATABASE_URL=sqlite:///:memory:\n"), 0644))

	cfg := testConfig(t, dir)
	cfg.EnvFile = envPath

	r := New(cfg, WithLogger(quietLogger()))
	l, err := r.launcherFor()
	require.NoError(t, err)

	pl, ok := l.(*engine.PythonLauncher)
	require.True(t, ok)
	assert.Contains(t, pl.Env, "DATABASE_URL=sqlite:///:memory:")
}

func TestCollectOnly(t *testing.T) {
	root := writeTree(t, map[string]string{
		"test_a.py": "def test_1():\n    pass\ndef test_2():\n    pass\n",
		"test_b.py": `
import pytest

@pytest.mark.slow
def test_slow():
    pass
`,
	})
	cfg := testConfig(t, root)
	cfg.Markers = "not slow"

	r := New(cfg, WithLogger(quietLogger()))
	col, err := r.Collect(nil)
	require.NoError(t, err)
	assert.Len(t, col.Items, 2)
	assert.Equal(t, 1, col.Deselected)
	assert.Equal(t, 2, col.Files)
}

func TestCollectInvalidMarkerFilter(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Markers = "(broken"

	r := New(cfg, WithLogger(quietLogger()))
	_, err := r.Collect(nil)
	require.Error(t, err)
}

func TestCollectPopulatesCache(t *testing.T) {
	root := writeTree(t, map[string]string{"test_a.py": "def test_1():\n    pass\n"})
	cfg := testConfig(t, root)

	r := New(cfg, WithLogger(quietLogger()))
	_, err := r.Collect(nil)
	require.NoError(t, err)

	entries, err := os.ReadDir(cfg.CacheDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	// A second pass answers from the cache and sees the same items.
	col, err := r.Collect(nil)
	require.NoError(t, err)
	assert.Len(t, col.Items, 1)
}

func TestNoCacheWritesNothing(t *testing.T) {
	root := writeTree(t, map[string]string{"test_a.py": "def test_1():\n    pass\n"})
	cfg := testConfig(t, root)
	cfg.NoCache = config.BoolPtr(true)

	r := New(cfg, WithLogger(quietLogger()))
	_, err := r.Collect(nil)
	require.NoError(t, err)

	_, statErr := os.Stat(cfg.CacheDir)
	assert.True(t, os.IsNotExist(statErr))
}

type recordingPlugin struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPlugin) Name() string { return "recorder" }

func (p *recordingPlugin) add(ev string) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *recordingPlugin) OnCollectionStart(roots []string)      { p.add("collection_start") }
func (p *recordingPlugin) OnRunStart(total int, strategy string) { p.add("run_start") }
func (p *recordingPlugin) OnItemFinish(res *result.TestResult)   { p.add("item_finish") }
func (p *recordingPlugin) OnRunFinish(sum *result.Summary)       { p.add("run_finish") }

func TestPluginLifecycle(t *testing.T) {
	root := writeTree(t, map[string]string{"test_a.py": "def test_1():\n    pass\n"})
	cfg := testConfig(t, root)

	rec := &recordingPlugin{}
	reg := plugin.NewRegistry()
	reg.Register(rec)

	r := New(cfg, WithLogger(quietLogger()), WithLauncher(&stubLauncher{statuses: map[string]string{}}), WithPlugins(reg))
	_, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"collection_start", "run_start", "item_finish", "run_finish"}, rec.events)
}

func TestRunFormatsResults(t *testing.T) {
	root := writeTree(t, map[string]string{"test_a.py": "def test_1():\n    pass\n"})
	cfg := testConfig(t, root)

	var buf bytes.Buffer
	fmtr := output.NewConsoleFormatter(output.WithWriter(&buf), output.WithNoColor(true))
	r := New(cfg, WithLogger(quietLogger()), WithLauncher(&stubLauncher{statuses: map[string]string{}}), WithFormatter(fmtr))

	_, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "collected 1 items")
	assert.Contains(t, out, "test_a.py::test_1")
	assert.Contains(t, out, "1 passed")
}
