package redact

import (
	"bytes"
	"context"
	"io"
	"testing"

	"go.uber.org/zap"

	"github.com/raaihank/binlog-scrub/internal/binlog"
	"github.com/raaihank/binlog-scrub/internal/cache"
)

// decodeOne round-trips a record through the codec so it carries a retained
// raw payload, the way records arrive from a real container.
func decodeOne(t *testing.T, rec *binlog.Record) *binlog.Record {
	t.Helper()

	var buf bytes.Buffer
	w, err := binlog.NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Write(rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	r, err := binlog.NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	out, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected EOF after single record, got %v", err)
	}
	return out
}

func TestTransformRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("MessageFieldRewritten", func(t *testing.T) {
		tr := NewTransformer(literalCatalog(t, "hunter2"), false, nil, zap.NewNop())
		rec := decodeOne(t, &binlog.Record{Kind: binlog.KindMessage, Text: "password was hunter2"})

		out := tr.TransformRecord(ctx, rec)
		if !out.Changed {
			t.Fatal("Changed not set")
		}
		if rec.Text != "password was <REDACTED>" {
			t.Fatalf("unexpected text: %q", rec.Text)
		}
		if rec.Raw() != nil {
			t.Error("retained encoding not invalidated after rewrite")
		}
		if len(out.Matches) != 1 || out.Matches[0].Field != "text" {
			t.Fatalf("unexpected matches: %+v", out.Matches)
		}
	})

	t.Run("UnchangedRecordKeepsRaw", func(t *testing.T) {
		tr := NewTransformer(literalCatalog(t, "hunter2"), false, nil, zap.NewNop())
		rec := decodeOne(t, &binlog.Record{Kind: binlog.KindMessage, Text: "nothing to see"})
		before := rec.Text

		out := tr.TransformRecord(ctx, rec)
		if out.Changed {
			t.Fatal("Changed set without matches")
		}
		if rec.Raw() == nil {
			t.Error("retained encoding dropped for an unchanged record")
		}
		if !sameString(rec.Text, before) {
			t.Error("unchanged field is not the original reference")
		}
	})

	t.Run("TaskFieldsIndependent", func(t *testing.T) {
		tr := NewTransformer(literalCatalog(t, "hunter2"), true, nil, zap.NewNop())
		rec := decodeOne(t, &binlog.Record{
			Kind: binlog.KindTask,
			Name: "Publish",
			Args: []string{"--password", "hunter2", "--retry", "hunter2 and hunter2"},
			Path: "/src/app.proj",
		})

		out := tr.TransformRecord(ctx, rec)
		if !out.Changed {
			t.Fatal("Changed not set")
		}
		// Ordinals restart at zero for every field.
		if rec.Args[1] != "<REDACTED:0>" {
			t.Errorf("args[1] = %q", rec.Args[1])
		}
		if rec.Args[3] != "<REDACTED:0> and <REDACTED:1>" {
			t.Errorf("args[3] = %q", rec.Args[3])
		}
		if rec.Args[0] != "--password" || rec.Args[2] != "--retry" {
			t.Error("unmatched args were rewritten")
		}
		if rec.Name != "Publish" || rec.Path != "/src/app.proj" {
			t.Error("unmatched fields were rewritten")
		}

		fields := make(map[string]int)
		for _, m := range out.Matches {
			fields[m.Field]++
		}
		if fields["args[1]"] != 1 || fields["args[3]"] != 2 {
			t.Fatalf("unexpected per-field matches: %v", fields)
		}
	})

	t.Run("EmbeddedFileContentOpaque", func(t *testing.T) {
		tr := NewTransformer(literalCatalog(t, "hunter2"), false, nil, zap.NewNop())
		rec := decodeOne(t, &binlog.Record{
			Kind: binlog.KindEmbeddedFile,
			Name: "obj/hunter2/build.txt",
			Data: []byte("содержимое hunter2 stays put"),
		})

		out := tr.TransformRecord(ctx, rec)
		if !out.Changed {
			t.Fatal("entry name should have matched")
		}
		if rec.Name != "obj/<REDACTED>/build.txt" {
			t.Errorf("entry name = %q", rec.Name)
		}
		if !bytes.Contains(rec.Data, []byte("hunter2")) {
			t.Error("opaque entry content was modified")
		}
	})
}

func TestTransformerScanCache(t *testing.T) {
	ctx := context.Background()

	t.Run("HitServesSameRewrite", func(t *testing.T) {
		scans := cache.NewMemoryCache(16)
		tr := NewTransformer(literalCatalog(t, "hunter2"), false, scans, zap.NewNop())

		first := tr.scan(ctx, "pass hunter2 end")
		if !first.Changed {
			t.Fatal("expected a match")
		}
		if scans.Len() != 1 {
			t.Fatalf("expected 1 cached entry, got %d", scans.Len())
		}

		second := tr.scan(ctx, "pass hunter2 end")
		if second.Text != first.Text {
			t.Fatalf("cache hit rewrote differently: %q vs %q", second.Text, first.Text)
		}
		if len(second.Matches) != len(first.Matches) {
			t.Fatalf("cache hit lost match metadata")
		}
	})

	t.Run("NoMatchHitReturnsCallerReference", func(t *testing.T) {
		scans := cache.NewMemoryCache(16)
		tr := NewTransformer(literalCatalog(t, "hunter2"), false, scans, zap.NewNop())

		payload1 := "clean payload"
		payload2 := string([]byte(payload1)) // equal value, distinct allocation
		if sameString(payload1, payload2) {
			t.Fatal("test payloads unexpectedly share a backing array")
		}

		tr.scan(ctx, payload1)
		res := tr.scan(ctx, payload2)
		if res.Changed {
			t.Fatal("unexpected match")
		}
		if !sameString(res.Text, payload2) {
			t.Error("cache hit must return the caller's reference, not the cached string")
		}
	})

	t.Run("CollisionDegradesToMiss", func(t *testing.T) {
		scans := cache.NewMemoryCache(16)
		tr := NewTransformer(literalCatalog(t, "hunter2"), false, scans, zap.NewNop())

		payload := "pass hunter2 end"
		key := cache.Key(tr.catalog.Fingerprint(), false, payload)
		// Poison the slot with an entry for a different payload, simulating
		// a hash collision.
		if err := scans.Set(ctx, key, &cache.Entry{Input: "other", Changed: true, Text: "WRONG"}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		res := tr.scan(ctx, payload)
		if res.Text != "pass <REDACTED> end" {
			t.Fatalf("collision served the wrong rewrite: %q", res.Text)
		}
	})
}
