package runner

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/raaihank/binlog-scrub/internal/binlog"
	"github.com/raaihank/binlog-scrub/internal/config"
	"github.com/raaihank/binlog-scrub/internal/logger"
)

func nopLogger() *logger.Logger {
	return &logger.Logger{Logger: zap.NewNop()}
}

func testConfig() *config.Config {
	cfg := config.GetDefaults()
	cfg.Cache.Backend = "none"
	return cfg
}

func newTestRunner(cfg *config.Config, fs afero.Fs) (*Runner, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return NewWithCollaborators(cfg, nopLogger(), fs, out), out
}

func writeContainer(t *testing.T, fs afero.Fs, path string, recs []*binlog.Record) {
	t.Helper()
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	w, err := binlog.NewWriter(f)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			t.Fatalf("write record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
}

func readContainer(t *testing.T, fs afero.Fs, path string) []*binlog.Record {
	t.Helper()
	f, err := fs.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	r, err := binlog.NewReader(f)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	var recs []*binlog.Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return recs
		}
		if err != nil {
			t.Fatalf("read record: %v", err)
		}
		recs = append(recs, rec)
	}
}

func fileBytes(t *testing.T, fs afero.Fs, path string) []byte {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

// listTempFiles reports leftover temp outputs after a run.
func listTempFiles(t *testing.T, fs afero.Fs) []string {
	t.Helper()
	var temps []string
	err := afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.Contains(path, ".binscrub-") {
			temps = append(temps, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	return temps
}

func TestExecuteRedactsWithBuiltins(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeContainer(t, fs, "/build.bl", []*binlog.Record{
		{Kind: binlog.KindMessage, Text: "Restoring packages"},
		{Kind: binlog.KindMessage, Text: "export API_KEY=sk_live_4eC39HqLyjWDarj"},
		{Kind: binlog.KindTask, Name: "Publish", Args: []string{"--verbose"}, Path: "app.proj"},
	})

	r, out := newTestRunner(testConfig(), fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:      "/build.bl",
		OutputFileName: "/scrubbed.bl",
	})
	if code != CodeSuccess {
		t.Fatalf("Execute = %v, want CodeSuccess", code)
	}

	recs := readContainer(t, fs, "/scrubbed.bl")
	if len(recs) != 3 {
		t.Fatalf("output has %d records, want 3", len(recs))
	}
	if recs[0].Text != "Restoring packages" {
		t.Errorf("clean record altered: %q", recs[0].Text)
	}
	if recs[1].Text != "export API_KEY=<REDACTED>" {
		t.Errorf("secret survived: %q", recs[1].Text)
	}
	if recs[2].Name != "Publish" || recs[2].Args[0] != "--verbose" {
		t.Errorf("task record altered: %+v", recs[2])
	}

	if !strings.Contains(out.String(), "3 records processed") {
		t.Errorf("summary missing record count: %q", out.String())
	}

	if temps := listTempFiles(t, fs); len(temps) != 0 {
		t.Errorf("temp files left behind: %v", temps)
	}
}

func TestExecuteSummaryOmitsLiteralText(t *testing.T) {
	fs := afero.NewMemMapFs()
	secret := "hunter2-super-secret"
	writeContainer(t, fs, "/build.bl", []*binlog.Record{
		{Kind: binlog.KindMessage, Text: "deploy key is " + secret},
	})

	r, out := newTestRunner(testConfig(), fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:              "/build.bl",
		OutputFileName:         "/scrubbed.bl",
		DisableBuiltinPatterns: true,
		ExplicitPatterns:       []string{secret},
	})
	if code != CodeSuccess {
		t.Fatalf("Execute = %v, want CodeSuccess", code)
	}

	// The per-pattern summary goes to stdout and, when configured, into the
	// findings export and audit trail. It must name the rule, never echo the
	// value the run just redacted.
	if strings.Contains(out.String(), secret) {
		t.Fatalf("summary leaks the literal:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "literal-1") {
		t.Errorf("summary missing the anonymized pattern name:\n%s", out.String())
	}

	recs := readContainer(t, fs, "/scrubbed.bl")
	if recs[0].Text != "deploy key is <REDACTED>" {
		t.Errorf("record not redacted: %q", recs[0].Text)
	}
}

func TestExecuteNoMatchOutputByteIdentical(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeContainer(t, fs, "/build.bl", []*binlog.Record{
		{Kind: binlog.KindMessage, Text: "export API_KEY=sk_live_4eC39HqLyjWDarj"},
		{Kind: binlog.KindTask, Name: "Compile", Args: []string{"-p:Configuration=Release"}, Path: "lib.proj"},
		{Kind: binlog.KindEmbeddedFile, Name: "nuget.config", Data: []byte{0x1f, 0x8b, 0x00}},
	})
	before := fileBytes(t, fs, "/build.bl")

	r, _ := newTestRunner(testConfig(), fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:              "/build.bl",
		OutputFileName:         "/scrubbed.bl",
		DisableBuiltinPatterns: true,
		ExplicitPatterns:       []string{"0e7f9a2c-no-such-value-4b1d"},
	})
	if code != CodeSuccess {
		t.Fatalf("Execute = %v, want CodeSuccess", code)
	}

	after := fileBytes(t, fs, "/scrubbed.bl")
	if !bytes.Equal(before, after) {
		t.Fatal("no-match output differs from input byte for byte")
	}
}

func TestExecuteOutputExists(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeContainer(t, fs, "/build.bl", []*binlog.Record{
		{Kind: binlog.KindMessage, Text: "hello"},
	})
	if err := afero.WriteFile(fs, "/scrubbed.bl", []byte("precious"), 0644); err != nil {
		t.Fatalf("seed dest: %v", err)
	}

	r, _ := newTestRunner(testConfig(), fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:      "/build.bl",
		OutputFileName: "/scrubbed.bl",
	})
	if code != CodeOutputAlreadyExists {
		t.Fatalf("Execute = %v, want CodeOutputAlreadyExists", code)
	}

	if got := fileBytes(t, fs, "/scrubbed.bl"); string(got) != "precious" {
		t.Errorf("existing destination was modified: %q", got)
	}
}

func TestExecuteOverwriteReplacesDestination(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeContainer(t, fs, "/build.bl", []*binlog.Record{
		{Kind: binlog.KindMessage, Text: "password=hunter2now"},
	})
	if err := afero.WriteFile(fs, "/scrubbed.bl", []byte("stale"), 0644); err != nil {
		t.Fatalf("seed dest: %v", err)
	}

	r, _ := newTestRunner(testConfig(), fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:      "/build.bl",
		OutputFileName: "/scrubbed.bl",
		Overwrite:      true,
	})
	if code != CodeSuccess {
		t.Fatalf("Execute = %v, want CodeSuccess", code)
	}

	recs := readContainer(t, fs, "/scrubbed.bl")
	if len(recs) != 1 || recs[0].Text != "password=<REDACTED>" {
		t.Fatalf("unexpected output records: %+v", recs)
	}
}

func TestExecuteNoPatternsFailsBeforeIO(t *testing.T) {
	fs := afero.NewMemMapFs()
	// The input deliberately does not exist. An empty catalog must be
	// rejected before the input is ever consulted.
	r, _ := newTestRunner(testConfig(), fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:              "/missing.bl",
		OutputFileName:         "/scrubbed.bl",
		DisableBuiltinPatterns: true,
	})
	if code != CodeInvalidOptions {
		t.Fatalf("Execute = %v, want CodeInvalidOptions", code)
	}

	if exists, _ := afero.Exists(fs, "/scrubbed.bl"); exists {
		t.Error("output created despite invalid options")
	}
}

func TestExecuteMissingOptions(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, _ := newTestRunner(testConfig(), fs)

	if code := r.Execute(context.Background(), config.Options{OutputFileName: "/o.bl"}); code != CodeInvalidOptions {
		t.Errorf("missing input path: Execute = %v, want CodeInvalidOptions", code)
	}
	if code := r.Execute(context.Background(), config.Options{InputPath: "/i.bl"}); code != CodeInvalidOptions {
		t.Errorf("missing output name: Execute = %v, want CodeInvalidOptions", code)
	}
}

func TestExecuteInputNotFound(t *testing.T) {
	fs := afero.NewMemMapFs()
	r, _ := newTestRunner(testConfig(), fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:      "/missing.bl",
		OutputFileName: "/scrubbed.bl",
	})
	if code != CodeInputNotFound {
		t.Fatalf("Execute = %v, want CodeInputNotFound", code)
	}
}

func TestExecuteCorruptInput(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/build.bl", []byte("this is not a container"), 0644); err != nil {
		t.Fatalf("seed input: %v", err)
	}

	r, _ := newTestRunner(testConfig(), fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:      "/build.bl",
		OutputFileName: "/scrubbed.bl",
	})
	if code != CodeProcessingFailed {
		t.Fatalf("Execute = %v, want CodeProcessingFailed", code)
	}

	if exists, _ := afero.Exists(fs, "/scrubbed.bl"); exists {
		t.Error("output created from corrupt input")
	}
	if temps := listTempFiles(t, fs); len(temps) != 0 {
		t.Errorf("temp files left behind: %v", temps)
	}
}

func TestExecuteTruncatedInputRemovesTemp(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeContainer(t, fs, "/full.bl", []*binlog.Record{
		{Kind: binlog.KindMessage, Text: "one"},
		{Kind: binlog.KindMessage, Text: "two"},
	})
	full := fileBytes(t, fs, "/full.bl")
	// Cut the container mid-stream so decoding fails after the header parses.
	if err := afero.WriteFile(fs, "/build.bl", full[:len(full)-4], 0644); err != nil {
		t.Fatalf("seed input: %v", err)
	}

	r, _ := newTestRunner(testConfig(), fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:      "/build.bl",
		OutputFileName: "/scrubbed.bl",
	})
	if code != CodeProcessingFailed {
		t.Fatalf("Execute = %v, want CodeProcessingFailed", code)
	}
	if temps := listTempFiles(t, fs); len(temps) != 0 {
		t.Errorf("temp files left behind: %v", temps)
	}
	if exists, _ := afero.Exists(fs, "/scrubbed.bl"); exists {
		t.Error("output created from truncated input")
	}
}

func TestExecuteUnknownCacheBackend(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeContainer(t, fs, "/build.bl", []*binlog.Record{
		{Kind: binlog.KindMessage, Text: "hello"},
	})

	cfg := testConfig()
	cfg.Cache.Backend = "memcached"
	r, _ := newTestRunner(cfg, fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:      "/build.bl",
		OutputFileName: "/scrubbed.bl",
	})
	if code != CodeInvalidOptions {
		t.Fatalf("Execute = %v, want CodeInvalidOptions", code)
	}
}

func TestExecuteWritesFindingsExport(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeContainer(t, fs, "/build.bl", []*binlog.Record{
		{Kind: binlog.KindMessage, Text: "token=ghp_FAKEFAKEFAKEFAKE"},
	})

	cfg := testConfig()
	cfg.Report.ExportPath = "/findings.parquet"
	r, _ := newTestRunner(cfg, fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:      "/build.bl",
		OutputFileName: "/scrubbed.bl",
	})
	if code != CodeSuccess {
		t.Fatalf("Execute = %v, want CodeSuccess", code)
	}

	info, err := fs.Stat("/findings.parquet")
	if err != nil {
		t.Fatalf("findings export missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("findings export is empty")
	}
}

func TestExecuteMemoryCacheBackend(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeContainer(t, fs, "/build.bl", []*binlog.Record{
		{Kind: binlog.KindMessage, Text: "password=hunter2now"},
		{Kind: binlog.KindMessage, Text: "password=hunter2now"},
	})

	cfg := testConfig()
	cfg.Cache.Backend = "memory"
	r, _ := newTestRunner(cfg, fs)
	code := r.Execute(context.Background(), config.Options{
		InputPath:      "/build.bl",
		OutputFileName: "/scrubbed.bl",
	})
	if code != CodeSuccess {
		t.Fatalf("Execute = %v, want CodeSuccess", code)
	}

	recs := readContainer(t, fs, "/scrubbed.bl")
	for i, rec := range recs {
		if rec.Text != "password=<REDACTED>" {
			t.Errorf("record %d not redacted: %q", i, rec.Text)
		}
	}
}
