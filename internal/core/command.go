package core

import "context"

// Caller is the identity issuing a command, with its role at dispatch time.
type Caller struct {
	ID   int64
	Name string
	Role Role
}

type Command interface {
	Name() string
	Description() string
	MinRole() Role
	Execute(ctx context.Context, caller Caller, args []string) (string, error)
}

type CmdRouter interface {
	Execute(ctx context.Context, caller Caller, input string) (string, bool)
	ListCommands(role Role) []Command
}
