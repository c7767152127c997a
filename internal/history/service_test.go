package history

import (
	"strings"
	"testing"
)

func TestRecordAndHistory(t *testing.T) {
	svc := New(t.TempDir())

	if err := svc.Record("founder-u1", "people/grace.md", "# Grace\n\nFirst draft.\n", "u1"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := svc.Record("founder-u1", "people/grace.md", "# Grace\n\nSecond draft.\n", "u1"); err != nil {
		t.Fatalf("Record() second revision error = %v", err)
	}

	commits, err := svc.History("founder-u1", "people/grace.md", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("History() = %d commits, want 2", len(commits))
	}
	for _, commit := range commits {
		if !strings.Contains(commit.Message, "people/grace.md") {
			t.Errorf("commit message %q missing file path", commit.Message)
		}
		if commit.Author != "u1" {
			t.Errorf("commit author = %q, want u1", commit.Author)
		}
		if commit.Hash == "" {
			t.Error("expected commit hash")
		}
	}
}

func TestRecordUnchangedContent(t *testing.T) {
	svc := New(t.TempDir())

	content := "# Grace\n"
	if err := svc.Record("founder-u1", "people/grace.md", content, "u1"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := svc.Record("founder-u1", "people/grace.md", content, "u1"); err != nil {
		t.Fatalf("Record() with unchanged content error = %v", err)
	}

	commits, err := svc.History("founder-u1", "people/grace.md", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(commits) != 1 {
		t.Errorf("History() = %d commits, want 1", len(commits))
	}
}

func TestRemove(t *testing.T) {
	svc := New(t.TempDir())

	if err := svc.Record("founder-u1", "people/grace.md", "# Grace\n", "u1"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := svc.Remove("founder-u1", "people/grace.md", "u1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	commits, err := svc.History("founder-u1", "people/grace.md", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(commits) != 2 {
		t.Errorf("History() = %d commits, want 2 (create + delete)", len(commits))
	}
}

func TestRemoveNeverRecorded(t *testing.T) {
	svc := New(t.TempDir())

	if err := svc.Remove("founder-u1", "people/nobody.md", "u1"); err != nil {
		t.Fatalf("Remove() on unknown layer error = %v", err)
	}

	if err := svc.Record("founder-u1", "people/grace.md", "# Grace\n", "u1"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := svc.Remove("founder-u1", "people/nobody.md", "u1"); err != nil {
		t.Fatalf("Remove() on unknown file error = %v", err)
	}
}

func TestHistoryUnknownLayer(t *testing.T) {
	svc := New(t.TempDir())

	commits, err := svc.History("founder-missing", "people/grace.md", 5)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(commits) != 0 {
		t.Errorf("History() = %v, want empty", commits)
	}
}

func TestLayersAreIsolated(t *testing.T) {
	svc := New(t.TempDir())

	if err := svc.Record("founder-u1", "people/grace.md", "# Grace\n", "u1"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := svc.Record("renubu-tenant-t1", "projects/apollo.md", "# Apollo\n", "u2"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	commits, err := svc.History("renubu-tenant-t1", "people/grace.md", 5)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(commits) != 0 {
		t.Errorf("cross-layer History() = %v, want empty", commits)
	}
}
