package locks

import "testing"

func TestParseList(t *testing.T) {
	out := "docs/spec.docx\talice\tID:6\n" +
		"report.docx bob\n" +
		"\n" +
		"docs\\plan.docx\tcarol\tID:9\n" +
		"garbageline\n"
	records := parseList(out)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %+v", len(records), records)
	}
	if records[0].Path != "docs/spec.docx" || records[0].Owner != "alice" || records[0].ID != "6" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[1].Path != "report.docx" || records[1].Owner != "bob" || records[1].ID != "" {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
	if records[2].Path != "docs/plan.docx" {
		t.Fatalf("expected backslashes normalized, got %q", records[2].Path)
	}
}

func TestMatchLock(t *testing.T) {
	records := parseList("docs/spec.docx alice ID:6\nnotes/readme.docx bob ID:7\n")
	cases := []struct {
		name      string
		relPath   string
		wantOwner string
	}{
		{"exact", "docs/spec.docx", "alice"},
		{"basename only", "spec.docx", "alice"},
		{"deeper local path", "work/notes/readme.docx", "bob"},
		{"backslashed request", "docs\\spec.docx", "alice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := matchLock(records, tc.relPath)
			if rec == nil {
				t.Fatalf("expected match for %q", tc.relPath)
			}
			if rec.Owner != tc.wantOwner {
				t.Fatalf("owner = %q, want %q", rec.Owner, tc.wantOwner)
			}
		})
	}
	if rec := matchLock(records, "docs/other.docx"); rec != nil {
		t.Fatalf("unexpected match: %+v", rec)
	}
}

func TestMatchLockFirstWins(t *testing.T) {
	// Two same-named files in different directories: list order decides.
	records := parseList("a/spec.docx alice ID:1\nb/spec.docx bob ID:2\n")
	rec := matchLock(records, "spec.docx")
	if rec == nil || rec.Owner != "alice" {
		t.Fatalf("expected first record to win, got %+v", rec)
	}
}
