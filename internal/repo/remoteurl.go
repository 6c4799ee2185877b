package repo

import (
	"strings"

	"github.com/mkrav/gitdocs/internal/protocol"
	"github.com/mkrav/gitdocs/schema"
)

// NormalizeRemoteURL validates a user-supplied repository URL and returns
// it in canonical clone form. Web-UI suffixes such as /-/tree/main and
// trailing slashes are stripped and a .git suffix is ensured.
func NormalizeRemoteURL(raw string) (string, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return "", schema.ErrInvalidRemoteURL
	}
	host, project, ok := protocol.SplitRemote(input)
	if !ok {
		return "", schema.ErrInvalidRemoteURL
	}
	lower := strings.ToLower(input)
	switch {
	case strings.HasPrefix(lower, "https://"):
		return "https://" + host + "/" + project + ".git", nil
	case strings.HasPrefix(lower, "git@"):
		return "git@" + host + ":" + project + ".git", nil
	case strings.HasPrefix(lower, "ssh://"):
		return "ssh://git@" + host + "/" + project + ".git", nil
	}
	return "", schema.ErrInvalidRemoteURL
}
