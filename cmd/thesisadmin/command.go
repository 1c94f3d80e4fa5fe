package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/pflag"
)

// Command is one admin subcommand.
type Command struct {
	Name        string
	Description string
	Usage       string
	Args        int // exact number of positional arguments
	Flags       func(fs *pflag.FlagSet)
	Run         func(ctx context.Context, a *app, fs *pflag.FlagSet) error
}

// CommandRegistry dispatches on the first positional argument.
type CommandRegistry struct {
	commands map[string]*Command
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]*Command)}
}

func (r *CommandRegistry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
}

// Execute parses args for the named command and runs it.
func (r *CommandRegistry) Execute(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		r.PrintHelp(a.stderr)
		return errUsage
	}

	name := args[0]
	switch name {
	case "help", "-h", "--help":
		r.PrintHelp(a.stdout)
		return nil
	}

	cmd, ok := r.commands[name]
	if !ok {
		r.PrintHelp(a.stderr)
		return fmt.Errorf("unknown command: %s", name)
	}

	fs := pflag.NewFlagSet(cmd.Name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.Usage = func() { cmd.PrintUsage(a.stderr, fs) }
	if cmd.Flags != nil {
		cmd.Flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return errUsage
	}
	if fs.NArg() != cmd.Args {
		cmd.PrintUsage(a.stderr, fs)
		return errUsage
	}
	return cmd.Run(ctx, a, fs)
}

func (c *Command) PrintUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintf(w, "%s\n\n", c.Description)
	fmt.Fprintf(w, "USAGE:\n    thesisadmin %s\n", c.Usage)
	if fs.HasFlags() {
		fmt.Fprintf(w, "\nFLAGS:\n%s", fs.FlagUsages())
	}
}

func (r *CommandRegistry) PrintHelp(w io.Writer) {
	fmt.Fprintln(w, "thesisadmin - administer the lock service")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "    thesisadmin [--server URL] [--timezone ZONE] <command> [arguments]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")

	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "    %-28s %s\n", name, r.commands[name].Description)
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'thesisadmin <command> --help' for more information on a command.")
}
