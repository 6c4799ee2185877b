// Package bot maps chat messages onto the core service. It runs the
// conversational flows for setup and uploads and renders service results
// and errors back to the chat.
package bot

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/mkrav/gitdocs/core"
	"github.com/mkrav/gitdocs/internal/chat"
	"github.com/mkrav/gitdocs/internal/logx"
	"github.com/mkrav/gitdocs/internal/session"
	"github.com/mkrav/gitdocs/schema"
)

// Button labels double as commands. Matching is exact.
const (
	btnDocuments = "📄 Documents"
	btnUpload    = "⬆️ Upload"
	btnLocks     = "📋 Locks"
	btnStatus    = "ℹ️ Status"
	btnSync      = "🔄 Sync"
	btnResync    = "♻️ Resync"
	btnSetup     = "⚙️ Setup"
	btnCancel    = "❌ Cancel"
)

// Options configures a Bot.
type Options struct {
	// Admins may force-release locks held by other users.
	Admins []schema.ChatID
	// TmpDir holds uploaded files awaiting a change description.
	// Defaults to the system temp directory.
	TmpDir string
	Logger pslog.Logger
}

// Bot routes incoming chat messages to the service. Updates are handled
// one at a time, so flows never interleave within a chat.
type Bot struct {
	svc      core.Service
	tr       chat.Transport
	sessions *session.Store
	admins   map[schema.ChatID]bool
	tmpDir   string
	log      pslog.Logger
}

// New constructs a Bot for the given service and transport.
func New(svc core.Service, tr chat.Transport, opts Options) *Bot {
	admins := make(map[schema.ChatID]bool, len(opts.Admins))
	for _, id := range opts.Admins {
		admins[id] = true
	}
	tmpDir := opts.TmpDir
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bot{
		svc:      svc,
		tr:       tr,
		sessions: session.NewStore(),
		admins:   admins,
		tmpDir:   tmpDir,
		log:      logger,
	}
}

// Run consumes transport updates until ctx is cancelled or the updates
// channel closes.
func (b *Bot) Run(ctx context.Context) error {
	updates := b.tr.Updates(ctx)
	for {
		select {
		case inc, ok := <-updates:
			if !ok {
				return ctx.Err()
			}
			b.handle(ctx, inc)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Bot) handle(ctx context.Context, inc chat.Incoming) {
	log := b.log.With("request_id", uuid.NewString(), "principal", inc.Principal)
	ctx = pslog.ContextWithLogger(ctx, log)
	ctx = logx.ContextWithPrincipal(ctx, inc.Principal)
	log.Debug("incoming message", "text", truncate(inc.Text, 64), "has_file", inc.File != nil)

	principal := schema.Principal{
		ChatID:      inc.Principal,
		DisplayName: inc.DisplayName,
		IsAdmin:     b.admins[inc.Principal],
	}
	if err := b.dispatch(ctx, principal, inc); err != nil {
		log.Warn("message handling failed", "err", err)
		b.reply(ctx, inc.Principal, renderError(err), b.menu())
	}
}

func (b *Bot) dispatch(ctx context.Context, principal schema.Principal, inc chat.Incoming) error {
	text := strings.TrimSpace(inc.Text)
	if text == "/cancel" || text == btnCancel {
		b.cancel(ctx, principal.ChatID)
		return nil
	}

	state := b.sessions.Get(principal.ChatID)
	switch state.Stage {
	case session.StageAwaitRepoURL:
		return b.stageRepoURL(ctx, principal, text)
	case session.StageAwaitCredentials:
		return b.stageCredentials(ctx, principal, state, text)
	case session.StageAwaitKeyConfirm:
		return b.stageKeyConfirm(ctx, principal, state)
	case session.StageAwaitUpload:
		return b.stageUpload(ctx, principal, inc)
	case session.StageAwaitDescription:
		return b.stageDescription(ctx, principal, state, text)
	}

	// A document sent outside any flow starts an upload.
	if inc.File != nil {
		return b.stageUpload(ctx, principal, inc)
	}
	return b.command(ctx, principal, text)
}

func (b *Bot) command(ctx context.Context, principal schema.Principal, text string) error {
	cmd, arg := splitCommand(text)
	switch cmd {
	case "/start", "/help":
		b.reply(ctx, principal.ChatID, helpText, b.menu())
	case "/setup", btnSetup:
		b.sessions.Update(principal.ChatID, func(s *session.State) {
			*s = session.State{Stage: session.StageAwaitRepoURL}
		})
		b.reply(ctx, principal.ChatID, "Send the repository URL (https://... or git@...).", nil)
	case "/docs", btnDocuments:
		return b.listDocuments(ctx, principal)
	case "/get":
		return b.download(ctx, principal, arg)
	case "/upload", btnUpload:
		b.sessions.Update(principal.ChatID, func(s *session.State) {
			*s = session.State{Stage: session.StageAwaitUpload}
		})
		b.reply(ctx, principal.ChatID, "Send the new document as a file. Its name selects the document to replace.", nil)
	case "/lock":
		return b.lock(ctx, principal, arg)
	case "/unlock":
		return b.unlock(ctx, principal, arg, false)
	case "/forceunlock":
		return b.unlock(ctx, principal, arg, true)
	case "/locks", btnLocks:
		return b.listLocks(ctx, principal)
	case "/status", btnStatus:
		return b.status(ctx, principal)
	case "/sync", btnSync:
		return b.sync(ctx, principal)
	case "/resync", btnResync:
		return b.resync(ctx, principal)
	default:
		b.reply(ctx, principal.ChatID, "Unknown command. Send /help to see what I can do.", b.menu())
	}
	return nil
}

func (b *Bot) cancel(ctx context.Context, id schema.ChatID) {
	state := b.sessions.Get(id)
	if state.PendingFile != "" {
		_ = os.Remove(state.PendingFile)
	}
	b.sessions.Reset(id)
	b.reply(ctx, id, "Cancelled.", b.menu())
}

func (b *Bot) stageRepoURL(ctx context.Context, principal schema.Principal, text string) error {
	if text == "" {
		b.reply(ctx, principal.ChatID, "Send the repository URL, or /cancel.", nil)
		return nil
	}
	b.sessions.Update(principal.ChatID, func(s *session.State) {
		s.Stage = session.StageAwaitCredentials
		s.RemoteURL = text
	})
	b.reply(ctx, principal.ChatID,
		"Send your platform username and access token separated by a space.\n"+
			"For GitLab you may send just the username to use SSH key access instead.", nil)
	return nil
}

func (b *Bot) stageCredentials(ctx context.Context, principal schema.Principal, state session.State, text string) error {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > 2 {
		b.reply(ctx, principal.ChatID, "Send \"username token\", or just \"username\" for GitLab SSH access.", nil)
		return nil
	}
	req := schema.SetupRequest{
		Principal:   principal,
		RemoteURL:   state.RemoteURL,
		VCSUsername: schema.VCSUsername(fields[0]),
	}
	if len(fields) == 2 {
		req.Token = fields[1]
	}
	resp, err := b.svc.Setup(ctx, req)
	if err != nil {
		b.sessions.Reset(principal.ChatID)
		return err
	}
	if resp.KeyRegistrationRequired {
		b.sessions.Update(principal.ChatID, func(s *session.State) {
			s.Stage = session.StageAwaitKeyConfirm
			s.VCSUsername = fields[0]
		})
		b.reply(ctx, principal.ChatID,
			"Add this SSH key to your hosting account, then send \"done\":\n\n"+resp.PublicKey, nil)
		return nil
	}
	b.sessions.Reset(principal.ChatID)
	b.reply(ctx, principal.ChatID, "Repository configured: "+resp.Binding.RemoteURL, b.menu())
	return nil
}

func (b *Bot) stageKeyConfirm(ctx context.Context, principal schema.Principal, state session.State) error {
	resp, err := b.svc.ConfirmKeyRegistered(ctx, schema.ConfirmKeyRequest{
		Principal:   principal,
		RemoteURL:   state.RemoteURL,
		VCSUsername: schema.VCSUsername(state.VCSUsername),
	})
	if err != nil {
		// The key may not have propagated yet; keep waiting.
		b.reply(ctx, principal.ChatID,
			"Could not reach the repository yet: "+renderError(err)+"\nSend \"done\" to retry, or /cancel.", nil)
		return nil
	}
	b.sessions.Reset(principal.ChatID)
	b.reply(ctx, principal.ChatID, "Repository configured: "+resp.Binding.RemoteURL, b.menu())
	return nil
}

func (b *Bot) stageUpload(ctx context.Context, principal schema.Principal, inc chat.Incoming) error {
	if inc.File == nil {
		b.reply(ctx, principal.ChatID, "Send the new version as a file, or /cancel.", nil)
		return nil
	}
	src, err := b.tr.OpenFile(ctx, *inc.File)
	if err != nil {
		b.sessions.Reset(principal.ChatID)
		return err
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(b.tmpDir, "upload-*")
	if err != nil {
		b.sessions.Reset(principal.ChatID)
		return err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		b.sessions.Reset(principal.ChatID)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		b.sessions.Reset(principal.ChatID)
		return err
	}
	b.sessions.Update(principal.ChatID, func(s *session.State) {
		s.Stage = session.StageAwaitDescription
		s.Document = schema.Document{Name: inc.File.Name}
		s.PendingFile = tmp.Name()
	})
	b.reply(ctx, principal.ChatID, "Got "+inc.File.Name+". Now send a short description of the change.", nil)
	return nil
}

func (b *Bot) stageDescription(ctx context.Context, principal schema.Principal, state session.State, text string) error {
	if text == "" {
		b.reply(ctx, principal.ChatID, "A change description is required. Send one, or /cancel.", nil)
		return nil
	}
	f, err := os.Open(state.PendingFile)
	if err != nil {
		b.sessions.Reset(principal.ChatID)
		return err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(state.PendingFile)
	}()

	resp, err := b.svc.Replace(ctx, schema.ReplaceRequest{
		Principal:   principal,
		Name:        state.Document.Name,
		Content:     f,
		Description: text,
	})
	b.sessions.Reset(principal.ChatID)
	if err != nil {
		return err
	}
	b.reply(ctx, principal.ChatID, renderUpload(state.Document.Name, resp.Result), b.menu())
	return nil
}

func (b *Bot) listDocuments(ctx context.Context, principal schema.Principal) error {
	resp, err := b.svc.Documents(ctx, schema.DocumentsRequest{Principal: principal})
	if err != nil {
		return err
	}
	if len(resp.Documents) == 0 {
		b.reply(ctx, principal.ChatID, "No documents found in the repository.", b.menu())
		return nil
	}
	var sb strings.Builder
	sb.WriteString("Documents:\n")
	for _, doc := range resp.Documents {
		fmt.Fprintf(&sb, "• %s\n", doc.RelPath)
	}
	sb.WriteString("\nSend /get <name> to download, /lock <name> to claim the edit lock.")
	b.reply(ctx, principal.ChatID, sb.String(), b.menu())
	return nil
}

func (b *Bot) download(ctx context.Context, principal schema.Principal, name string) error {
	if name == "" {
		b.reply(ctx, principal.ChatID, "Usage: /get <document name>", nil)
		return nil
	}
	resp, err := b.svc.Download(ctx, schema.DownloadRequest{Principal: principal, Name: name})
	if err != nil {
		return err
	}
	return b.tr.SendFile(ctx, principal.ChatID, resp.Path, resp.Document.RelPath)
}

func (b *Bot) lock(ctx context.Context, principal schema.Principal, name string) error {
	if name == "" {
		b.reply(ctx, principal.ChatID, "Usage: /lock <document name>", nil)
		return nil
	}
	resp, err := b.svc.Lock(ctx, schema.LockRequest{Principal: principal, Name: name})
	if err != nil {
		return err
	}
	b.reply(ctx, principal.ChatID, "Locked "+resp.Document.RelPath+". Others cannot upload it until you unlock.", b.menu())
	return nil
}

func (b *Bot) unlock(ctx context.Context, principal schema.Principal, name string, force bool) error {
	if name == "" {
		usage := "/unlock <document name>"
		if force {
			usage = "/forceunlock <document name>"
		}
		b.reply(ctx, principal.ChatID, "Usage: "+usage, nil)
		return nil
	}
	resp, err := b.svc.Unlock(ctx, schema.UnlockRequest{Principal: principal, Name: name, Force: force})
	if err != nil {
		return err
	}
	b.reply(ctx, principal.ChatID, "Unlocked "+resp.Document.RelPath+".", b.menu())
	return nil
}

func (b *Bot) listLocks(ctx context.Context, principal schema.Principal) error {
	resp, err := b.svc.Locks(ctx, schema.LocksRequest{Principal: principal})
	if err != nil {
		return err
	}
	if len(resp.Locks) == 0 {
		b.reply(ctx, principal.ChatID, "No active locks.", b.menu())
		return nil
	}
	locks := append([]schema.LockRecord(nil), resp.Locks...)
	sort.Slice(locks, func(i, j int) bool { return locks[i].Path < locks[j].Path })
	var sb strings.Builder
	sb.WriteString("Active locks:\n")
	for _, l := range locks {
		fmt.Fprintf(&sb, "• %s - %s\n", l.Path, l.Owner)
	}
	b.reply(ctx, principal.ChatID, sb.String(), b.menu())
	return nil
}

func (b *Bot) status(ctx context.Context, principal schema.Principal) error {
	resp, err := b.svc.Status(ctx, schema.StatusRequest{Principal: principal})
	if err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Repository: %s\n", resp.Binding.RemoteURL)
	fmt.Fprintf(&sb, "Platform: %s\n", resp.Binding.Flavor)
	if resp.Branch != "" {
		fmt.Fprintf(&sb, "Branch: %s\n", resp.Branch)
	}
	fmt.Fprintf(&sb, "Documents: %d\n", resp.DocumentCount)
	if resp.DirtyPaths > 0 {
		fmt.Fprintf(&sb, "Uncommitted changes: %d\n", resp.DirtyPaths)
	}
	fmt.Fprintf(&sb, "Active locks: %d", len(resp.Locks))
	b.reply(ctx, principal.ChatID, sb.String(), b.menu())
	return nil
}

func (b *Bot) sync(ctx context.Context, principal schema.Principal) error {
	resp, err := b.svc.SyncRepo(ctx, schema.SyncRequest{Principal: principal})
	if err != nil {
		return err
	}
	msg := "Repository is up to date."
	if resp.Result.StashKept {
		msg += " Local changes were kept in a stash for manual recovery."
	}
	b.reply(ctx, principal.ChatID, msg, b.menu())
	return nil
}

func (b *Bot) resync(ctx context.Context, principal schema.Principal) error {
	resp, err := b.svc.Resync(ctx, schema.ResyncRequest{Principal: principal})
	if err != nil {
		return err
	}
	b.reply(ctx, principal.ChatID, "Recreated the working copy from "+resp.Binding.RemoteURL+".", b.menu())
	return nil
}

func (b *Bot) reply(ctx context.Context, to schema.ChatID, text string, keyboard [][]string) {
	if err := b.tr.Reply(ctx, to, text, keyboard); err != nil {
		logx.Ctx(ctx).Warn("reply failed", "err", err)
	}
}

func (b *Bot) menu() [][]string {
	return [][]string{
		{btnDocuments, btnUpload},
		{btnLocks, btnStatus},
		{btnSync, btnResync},
		{btnSetup, btnCancel},
	}
}

func splitCommand(text string) (cmd, arg string) {
	cmd, arg, _ = strings.Cut(text, " ")
	return cmd, strings.TrimSpace(arg)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

const helpText = `I keep shared documents in a git repository and make sure only one
person edits a document at a time.

/setup  - bind this chat to a repository
/docs   - list documents
/get <name>    - download a document
/lock <name>   - claim the edit lock
/unlock <name> - release your lock
/locks  - show who holds locks
/status - repository summary
/sync   - pull the latest changes
/resync - discard the working copy and clone fresh
/cancel - abort the current flow

To upload a new version, send the file and then a change description.`
