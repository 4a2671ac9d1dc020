package command

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sandevgo/reliefdesk/internal/core"
	"github.com/sandevgo/reliefdesk/pkg/log"
)

type RoleResolver interface {
	Resolve(ctx context.Context, id int64) (core.Role, error)
}

// bodyCommand is implemented by commands that take a multi-line body,
// such as an attached CSV file, and need it unsplit.
type bodyCommand interface {
	ExecuteBody(ctx context.Context, caller core.Caller, body string) (string, error)
}

// Router dispatches "/name args" input to commands after checking the
// caller's effective role against the command's minimum.
type Router struct {
	roles     RoleResolver
	commands  map[string]core.Command
	formatter *ResponseFormatter
}

func New(roles RoleResolver, commands []core.Command) *Router {
	c := &Router{
		roles:     roles,
		commands:  make(map[string]core.Command),
		formatter: NewResponseFormatter(),
	}

	for _, cmd := range commands {
		c.commands[cmd.Name()] = cmd
	}
	help := NewHelpCommand(c)
	c.commands[help.Name()] = help
	return c
}

func (c *Router) Execute(ctx context.Context, caller core.Caller, input string) (string, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", false
	}

	parts := strings.Fields(input)
	name, _, _ := strings.Cut(strings.TrimPrefix(parts[0], "/"), "@")
	name = strings.ToLower(name)
	args := parts[1:]

	logger := log.FromCtx(ctx).With().
		Str("command", name).
		Int64("identity", caller.ID).
		Logger()
	ctx = logger.WithContext(ctx)

	cmd, ok := c.commands[name]
	if !ok {
		return fmt.Sprintf("Unknown command: /%s. Send /help for the list.", name), true
	}

	role, err := c.roles.Resolve(ctx, caller.ID)
	switch {
	case errors.Is(err, core.ErrNotRegistered):
		role = core.RoleNone
	case err != nil:
		logger.Error().Err(err).Msg("failed to resolve role")
		return c.formatter.Error(name, errors.New("could not check your access, try again later")), true
	}
	caller.Role = role

	if cmd.MinRole() > core.RoleNone {
		if role == core.RoleNone {
			return c.formatter.NotRegistered(caller.ID), true
		}
		if !role.AtLeast(cmd.MinRole()) {
			return c.formatter.Error(name, &core.AuthorizationError{Have: role, Need: cmd.MinRole()}), true
		}
	}

	var result string
	if bc, ok := cmd.(bodyCommand); ok {
		result, err = bc.ExecuteBody(ctx, caller, strings.TrimSpace(strings.TrimPrefix(input, parts[0])))
	} else {
		result, err = cmd.Execute(ctx, caller, args)
	}
	if err != nil {
		var verr *core.ValidationError
		var aerr *core.AuthorizationError
		if !errors.As(err, &verr) && !errors.As(err, &aerr) && !errors.Is(err, core.ErrBusy) {
			logger.Error().Err(err).Msg("command failed")
		}
		return c.formatter.Error(name, err), true
	}
	return result, true
}

// ListCommands returns the commands available to role, lowest role first.
func (c *Router) ListCommands(role core.Role) []core.Command {
	res := make([]core.Command, 0, len(c.commands))
	for _, cmd := range c.commands {
		if role.AtLeast(cmd.MinRole()) {
			res = append(res, cmd)
		}
	}
	slices.SortFunc(res, func(a, b core.Command) int {
		if a.MinRole() != b.MinRole() {
			return int(a.MinRole()) - int(b.MinRole())
		}
		return strings.Compare(a.Name(), b.Name())
	})
	return res
}
