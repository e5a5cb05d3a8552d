package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"cobiv/internal/logging"
	"cobiv/internal/progress"
	"cobiv/internal/session"
)

// DefaultPageSize is the number of entries listed by page without an argument.
const DefaultPageSize = 10

var (
	// ErrUnknownCommand reports a command name with no registration.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUsage reports arguments a command cannot accept.
	ErrUsage = errors.New("usage")
)

// Func runs a command with its positional arguments.
type Func func(ctx context.Context, args []string) error

// Command is a named operation.
type Command struct {
	Name    string
	Usage   string
	Summary string
	Run     Func
}

// Registry holds commands by name.
type Registry struct {
	cmds map[string]Command
	sess *session.Session
	out  progress.Notifier
}

// New creates a registry with every built-in command bound to sess.
// out receives command output; nil discards it.
func New(sess *session.Session, out progress.Notifier) *Registry {
	if out == nil {
		out = progress.Discard{}
	}
	r := &Registry{cmds: make(map[string]Command), sess: sess, out: out}
	r.registerBuiltins()
	return r
}

// Register adds or replaces a command.
func (r *Registry) Register(cmd Command) {
	r.cmds[cmd.Name] = cmd
}

// Lookup returns the command called name.
func (r *Registry) Lookup(name string) (Command, bool) {
	cmd, ok := r.cmds[name]
	return cmd, ok
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.cmds))
	for name := range r.cmds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run executes the command called name.
func (r *Registry) Run(ctx context.Context, name string, args ...string) error {
	cmd, ok := r.cmds[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	logging.Debug("command: %s %q", name, args)
	if err := cmd.Run(ctx, args); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Execute splits line on whitespace and runs it. Blank lines do nothing.
func (r *Registry) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	return r.Run(ctx, fields[0], fields[1:]...)
}

func usage(cmd string) error {
	return fmt.Errorf("%w: %s", ErrUsage, cmd)
}

// parseBool reads an optional boolean argument; none means nil.
func parseBool(args []string) (*bool, error) {
	if len(args) == 0 {
		return nil, nil
	}
	v, err := strconv.ParseBool(args[0])
	if err != nil {
		return nil, err
	}
	return &v, nil
}
