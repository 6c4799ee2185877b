// Package identity resolves remote lock-owner tokens against principals.
// The two sides live in different namespaces: this system creates locks
// under the principal's chat id, while locks taken directly on the hosting
// platform carry the VCS username.
package identity

import (
	"strings"

	"github.com/mkrav/gitdocs/schema"
)

// Resolve decides whether an owner token refers to the given principal.
//
// When the principal has no linked VCS username, only the chat id
// comparison can succeed. The same human acting under an unlinked VCS
// account therefore resolves as a non-owner; that ambiguity is surfaced
// to the user rather than guessed away.
func Resolve(principal schema.Principal, ownerToken string) schema.Identity {
	isOwner := ownerToken != "" && ownerToken == string(principal.ChatID)
	if !isOwner && principal.VCSUsername != "" {
		isOwner = strings.EqualFold(ownerToken, string(principal.VCSUsername))
	}
	return schema.Identity{
		IsOwner:   isOwner,
		CanUnlock: isOwner || principal.IsAdmin,
	}
}
