package logx

import (
	"context"

	"pkt.systems/pslog"

	"github.com/mkrav/gitdocs/schema"
)

type contextKey int

const principalKey contextKey = iota

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithPrincipal annotates the logger with the principal's chat id if present.
func WithPrincipal(ctx context.Context, chatID schema.ChatID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if chatID != "" {
		if current, ok := ctx.Value(principalKey).(schema.ChatID); ok && current == chatID {
			return log
		}
		log = log.With("principal", chatID)
	}
	return log
}

// WithRepo annotates the logger with repository binding metadata.
func WithRepo(log pslog.Logger, binding schema.RepositoryBinding) pslog.Logger {
	if binding.LocalPath != "" {
		log = log.With("repo_path", binding.LocalPath)
	}
	if binding.Flavor != "" {
		log = log.With("flavor", binding.Flavor)
	}
	return log
}

// ContextWithPrincipal stores the principal marker for log de-duplication.
func ContextWithPrincipal(ctx context.Context, chatID schema.ChatID) context.Context {
	if ctx == nil || chatID == "" {
		return ctx
	}
	return context.WithValue(ctx, principalKey, chatID)
}
