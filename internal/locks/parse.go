package locks

import (
	"strings"

	"github.com/mkrav/gitdocs/schema"
)

// parseList decodes `git lfs locks` output. Each line is whitespace
// separated: `path owner [ID:<n>]`. Older servers omit the ID column,
// so both 2- and 3-column lines are accepted. Lines that do not fit
// are skipped.
func parseList(out string) []schema.LockRecord {
	var records []schema.LockRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		rec := schema.LockRecord{
			Path:  normalizePath(parts[0]),
			Owner: parts[1],
		}
		if len(parts) > 2 && strings.HasPrefix(parts[2], "ID:") {
			rec.ID = strings.TrimPrefix(parts[2], "ID:")
		}
		records = append(records, rec)
	}
	return records
}

// matchLock finds the first record referring to relPath. The remote may
// report the lock under the full relative path, the basename only, or a
// backslashed variant, depending on how it was created; all are accepted.
// When same-named files exist in different directories the basename rule
// can pick the wrong one; unlock-by-id covers that case.
func matchLock(records []schema.LockRecord, relPath string) *schema.LockRecord {
	want := normalizePath(relPath)
	for i := range records {
		got := records[i].Path
		if got == want ||
			strings.HasSuffix(got, "/"+want) ||
			strings.HasSuffix(want, "/"+got) ||
			baseName(got) == baseName(want) {
			return &records[i]
		}
	}
	return nil
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.Trim(p, "/")
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
