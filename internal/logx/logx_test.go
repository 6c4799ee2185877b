package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"pkt.systems/pslog"

	"github.com/mkrav/gitdocs/schema"
)

func TestWithPrincipalAddsField(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	WithPrincipal(ctx, "42").Info("hello")

	entry := capture.firstEntry(t)
	if entry["principal"] != "42" {
		t.Fatalf("expected principal field, got %+v", entry)
	}
}

func TestWithPrincipalDeduplicates(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)
	ctx = ContextWithPrincipal(ctx, "42")
	WithPrincipal(ctx, "42").Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["principal"]; ok {
		t.Fatalf("did not expect duplicate principal field, got %+v", entry)
	}
}

func TestWithRepoAddsFields(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
	binding := schema.RepositoryBinding{LocalPath: "/repos/42", Flavor: schema.FlavorGitLab}
	WithRepo(logger, binding).Info("hello")

	entry := capture.firstEntry(t)
	if entry["repo_path"] != "/repos/42" {
		t.Fatalf("expected repo_path field, got %+v", entry)
	}
	if entry["flavor"] != "gitlab" {
		t.Fatalf("expected flavor field, got %+v", entry)
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
