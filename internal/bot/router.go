package bot

import (
	"context"
	"strings"

	"github.com/fairy-root/media-downloader-bot/internal/service/telegram"
)

const msgAdminOnly = "⛔ This command is for admins only."

// Command is an invocation of a slash command.
type Command struct {
	Name    string
	Args    []string
	Message *telegram.Message
}

// UserID is the sender of the command, or 0 for anonymous senders.
func (c *Command) UserID() int64 {
	if c.Message.From == nil {
		return 0
	}
	return c.Message.From.ID
}

type CommandFunc func(ctx context.Context, cmd *Command) error

// Router maps command names to handlers.
type Router struct {
	handlers map[string]CommandFunc
}

func NewRouter() *Router {
	return &Router{handlers: make(map[string]CommandFunc)}
}

func (r *Router) Handle(name string, fn CommandFunc) {
	r.handlers[name] = fn
}

// Lookup returns the handler for name.
func (r *Router) Lookup(name string) (CommandFunc, bool) {
	fn, ok := r.handlers[name]
	return fn, ok
}

// ParseCommand splits "/name@bot arg1 arg2". ok is false for text that is not a command.
func ParseCommand(text string) (name string, args []string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil, false
	}
	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return "", nil, false
	}
	return strings.ToLower(name), fields[1:], true
}

// RequireAdmin runs fn only for senders whose resolved role is admin, so a banned
// allowlisted id is refused too.
func (b *Bot) RequireAdmin(fn CommandFunc) CommandFunc {
	return func(ctx context.Context, cmd *Command) error {
		uid := cmd.UserID()
		if uid == 0 {
			return b.reply(ctx, cmd.Message, msgAdminOnly)
		}
		ok, err := b.resolver.ActsAsAdmin(ctx, uid)
		if err != nil {
			return err
		}
		if !ok {
			return b.reply(ctx, cmd.Message, msgAdminOnly)
		}
		return fn(ctx, cmd)
	}
}
