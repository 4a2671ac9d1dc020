package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/internal/service/conversation"
	"github.com/sandevgo/reliefdesk/pkg/conv"
)

const myUploadsLimit = 20

// UploadCommand opens an upload session. The category keyboard is built by
// the transport from the session's current options.
type UploadCommand struct {
	conversation Conversation
}

func NewUploadCommand(c Conversation) *UploadCommand {
	return &UploadCommand{conversation: c}
}

func (c *UploadCommand) Name() string        { return "upload" }
func (c *UploadCommand) Description() string { return "Submit a new entry" }
func (c *UploadCommand) MinRole() core.Role  { return core.RoleUploader }

func (c *UploadCommand) Execute(ctx context.Context, caller core.Caller, _ []string) (string, error) {
	reply, err := c.conversation.Handle(ctx, caller.ID, conversation.Input{Kind: conversation.InputStart})
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

type CancelCommand struct {
	conversation Conversation
}

func NewCancelCommand(c Conversation) *CancelCommand {
	return &CancelCommand{conversation: c}
}

func (c *CancelCommand) Name() string        { return "cancel" }
func (c *CancelCommand) Description() string { return "Abandon the current upload" }
func (c *CancelCommand) MinRole() core.Role  { return core.RoleViewer }

func (c *CancelCommand) Execute(ctx context.Context, caller core.Caller, _ []string) (string, error) {
	reply, err := c.conversation.Handle(ctx, caller.ID, conversation.Input{Kind: conversation.InputCancel})
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

type CodeCommand struct {
	codes     Codes
	formatter *ResponseFormatter
}

func NewCodeCommand(codes Codes, f *ResponseFormatter) *CodeCommand {
	return &CodeCommand{codes: codes, formatter: f}
}

func (c *CodeCommand) Name() string        { return "code" }
func (c *CodeCommand) Description() string { return "Show today's upload code" }
func (c *CodeCommand) MinRole() core.Role  { return core.RoleUploadAdmin }

func (c *CodeCommand) Execute(ctx context.Context, _ core.Caller, _ []string) (string, error) {
	code, err := c.codes.Current(ctx)
	if err != nil {
		return "", fmt.Errorf("load daily code: %w", err)
	}
	return c.formatter.Combine(
		c.formatter.Info("Upload code"),
		c.formatter.Label(code.Day, code.Code),
		c.formatter.Tip("valid until midnight"),
	), nil
}

// MyUploadsCommand lists the caller's uploads and removes the ones made
// today: /myuploads remove <id> or /myuploads remove all.
type MyUploadsCommand struct {
	entries   core.EntryRepository
	loc       *time.Location
	now       func() time.Time
	formatter *ResponseFormatter
}

func NewMyUploadsCommand(entries core.EntryRepository, loc *time.Location, now func() time.Time, f *ResponseFormatter) *MyUploadsCommand {
	return &MyUploadsCommand{entries: entries, loc: loc, now: now, formatter: f}
}

func (c *MyUploadsCommand) Name() string        { return "myuploads" }
func (c *MyUploadsCommand) Description() string { return "List or remove your uploads" }
func (c *MyUploadsCommand) MinRole() core.Role  { return core.RoleUploader }

func (c *MyUploadsCommand) Execute(ctx context.Context, caller core.Caller, args []string) (string, error) {
	if len(args) > 0 {
		if !strings.EqualFold(args[0], "remove") || len(args) != 2 {
			return c.formatter.Combine(
				c.formatter.Usage("/myuploads [remove <id>|all]"),
				c.formatter.Examples([]string{"/myuploads", "/myuploads remove 12", "/myuploads remove all"}),
			), nil
		}
		return c.remove(ctx, caller, args[1])
	}

	entries, err := c.entries.ListEntriesByUploader(ctx, caller.ID, myUploadsLimit)
	if err != nil {
		return "", fmt.Errorf("list uploads: %w", err)
	}
	if len(entries) == 0 {
		return "You have no uploads yet.", nil
	}

	items := make([]string, 0, len(entries))
	for _, e := range entries {
		kind := "text"
		if e.Payload != nil {
			kind = string(e.Payload.Kind())
		}
		items = append(items, fmt.Sprintf("#%d [%s] %s at %s",
			e.ID, conv.EscapeMarkdown(e.Category), kind, e.CreatedAt.In(c.loc).Format("02 Jan 15:04")))
	}
	return c.formatter.Combine(
		c.formatter.Info("Your uploads"),
		c.formatter.List(items),
		c.formatter.Tip("remove one of today's uploads with /myuploads remove <id>"),
	), nil
}

func (c *MyUploadsCommand) remove(ctx context.Context, caller core.Caller, target string) (string, error) {
	dayStart := core.StartOfDay(c.now().In(c.loc))

	if strings.EqualFold(target, "all") {
		n, err := c.entries.DeleteOwnEntriesToday(ctx, caller.ID, dayStart)
		if err != nil {
			return "", fmt.Errorf("remove uploads: %w", err)
		}
		if n == 0 {
			return "You have no uploads from today to remove.", nil
		}
		return c.formatter.Success(fmt.Sprintf("Removed %d upload(s) from today", n)), nil
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(target, "#"), 10, 64)
	if err != nil || id <= 0 {
		return "", &core.ValidationError{Field: "id", Message: fmt.Sprintf("%q is not an upload number", target)}
	}
	err = c.entries.DeleteOwnEntryToday(ctx, caller.ID, id, dayStart)
	if errors.Is(err, core.ErrNotFound) {
		return "", &core.ValidationError{Field: "id", Message: fmt.Sprintf("upload #%d is not one of your uploads from today", id)}
	}
	if err != nil {
		return "", fmt.Errorf("remove upload: %w", err)
	}
	return c.formatter.Success(fmt.Sprintf("Removed upload #%d", id)), nil
}
