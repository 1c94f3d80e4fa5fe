package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/glykeria-rk/thesisadmincli/internal/client"
)

const successMessage = "Your request was successful"

func registerCommands(r *CommandRegistry) {
	emailCommand := func(name, desc string, call func(*client.Client, context.Context, string) error) *Command {
		return &Command{
			Name:        name,
			Description: desc,
			Usage:       name + " <email-address>",
			Args:        1,
			Run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
				if err := call(a.client, ctx, fs.Arg(0)); err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, successMessage)
				return nil
			},
		}
	}

	r.Register(emailCommand("create-user", "Register a user", (*client.Client).CreateUser))
	r.Register(emailCommand("remove-user", "Remove a user with its rules and card", (*client.Client).RemoveUser))
	r.Register(emailCommand("remove-rfid-id-from-user", "Unassign a user's card", (*client.Client).RemoveRFID))
	r.Register(emailCommand("grant-unconditional-access",
		"Always grant a user; overrules any access rules", (*client.Client).GrantUnconditional))
	r.Register(emailCommand("deny-unconditional-access",
		"Always deny a user; overrules any access rules", (*client.Client).DenyUnconditional))
	r.Register(emailCommand("use-access-rules", "Decide a user's access by rules again", (*client.Client).UseRules))

	r.Register(&Command{
		Name:        "assign-rfid-id-to-user",
		Description: "Assign a card to a user",
		Usage:       "assign-rfid-id-to-user <email-address> <rfid-id>",
		Args:        2,
		Run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
			if err := a.client.AssignRFID(ctx, fs.Arg(0), fs.Arg(1)); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, successMessage)
			return nil
		},
	})

	r.Register(&Command{
		Name:        "view-all-users",
		Description: "List users",
		Usage:       "view-all-users",
		Run:         viewAllUsers,
	})

	r.Register(&Command{
		Name:        "view-user",
		Description: "Show a user and their access rules",
		Usage:       "view-user <email-address>",
		Args:        1,
		Run:         viewUser,
	})

	r.Register(&Command{
		Name:        "log",
		Description: "Show the audit log",
		Usage:       "log [--user EMAIL] [--category CATEGORY] [--limit N]",
		Flags: func(fs *pflag.FlagSet) {
			fs.String("user", "", "only entries for this user")
			fs.String("category", "", "GRANTED, DENIED, NOT_FOUND or ADMIN_CHANGE")
			fs.Int("limit", 0, "only the most recent N entries")
		},
		Run: showLog,
	})

	r.Register(&Command{
		Name:        "verify-rfid-id-access",
		Description: "Ask whether a card opens the lock now",
		Usage:       "verify-rfid-id-access <rfid-id>",
		Args:        1,
		Run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
			v, err := a.client.Verify(ctx, fs.Arg(0))
			var apiErr *client.APIError
			if err != nil && !(errors.As(err, &apiErr) && v.Decision != "") {
				return err
			}
			fmt.Fprintf(a.stdout, "%s: %s\n", v.Decision, v.Message)
			if err != nil {
				return errNotGranted
			}
			return nil
		},
	})

	r.Register(&Command{
		Name:        "add-access-rule",
		Description: "Add a one-shot or recurring access window",
		Usage:       `add-access-rule <email-address> "YYYY/MM/DD HH:MM" "YYYY/MM/DD HH:MM" [flags]`,
		Args:        3,
		Flags: func(fs *pflag.FlagSet) {
			fs.String("until", "", `last possible start, "YYYY/MM/DD HH:MM"`)
			fs.Int("count", 0, "number of occurrences")
			fs.String("frequency", "", "HOURLY, DAILY, WEEKLY, MONTHLY or YEARLY")
		},
		Run: addAccessRule,
	})

	r.Register(&Command{
		Name:        "remove-access-rule",
		Description: "Remove a rule by its index in view-user",
		Usage:       "remove-access-rule <email-address> <index>",
		Args:        2,
		Run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
			index, err := strconv.Atoi(fs.Arg(1))
			if err != nil || index < 0 {
				return fmt.Errorf("index must be a non-negative integer")
			}
			if err := a.client.RemoveRule(ctx, fs.Arg(0), index); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, successMessage)
			return nil
		},
	})
}

func viewAllUsers(ctx context.Context, a *app, _ *pflag.FlagSet) error {
	users, err := a.client.ListUsers(ctx)
	if err != nil {
		return err
	}
	tw := newTable(a.stdout, "Email", "Access status", "RFID ID")
	for _, u := range users {
		row(tw, u.EmailAddress, u.AccessStatus, orNone(u.RFIDID))
	}
	return tw.Flush()
}

func viewUser(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	u, err := a.client.GetUser(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	rules, err := a.client.ListRules(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, "Email address: "+u.EmailAddress)
	fmt.Fprintln(a.stdout, "Access status: "+u.AccessStatus)
	fmt.Fprintln(a.stdout, "RFID ID: "+orNone(u.RFIDID))
	fmt.Fprintln(a.stdout, "Access rules:")
	fmt.Fprintln(a.stdout)

	tw := newTable(a.stdout, "Index", "Start", "End", "Until", "Frequency", "Count", "Next")
	for _, r := range rules.AccessRules {
		count := "None"
		if r.Count != nil {
			count = strconv.Itoa(*r.Count)
		}
		row(tw, strconv.Itoa(r.Index), r.StartDT, r.EndDT, orNone(r.Until), orNone(r.Frequency), count, orNone(r.NextStart))
	}
	return tw.Flush()
}

func showLog(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	f := client.LogFilter{}
	f.User, _ = fs.GetString("user")
	f.Category, _ = fs.GetString("category")
	f.Limit, _ = fs.GetInt("limit")

	logs, err := a.client.Log(ctx, f)
	if err != nil {
		return err
	}
	tw := newTable(a.stdout, "Datetime", "Email address", "Method", "Category")
	for _, e := range logs.Logs {
		row(tw, e.Datetime, e.User, e.Method, e.Category)
	}
	return tw.Flush()
}

func addAccessRule(ctx context.Context, a *app, fs *pflag.FlagSet) error {
	spec := client.RuleSpec{Email: fs.Arg(0), Start: fs.Arg(1), End: fs.Arg(2)}
	spec.Until, _ = fs.GetString("until")
	spec.Count, _ = fs.GetInt("count")
	spec.Frequency, _ = fs.GetString("frequency")

	req, err := client.NewRuleRequest(spec, a.loc)
	if err != nil {
		return err
	}
	resp, err := a.client.AddRule(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Access rule added at index %d\n", resp.Index)
	return nil
}

func newTable(w io.Writer, header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row(tw, header...)
	return tw
}

func row(tw *tabwriter.Writer, cells ...string) {
	for i, c := range cells {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c)
	}
	fmt.Fprintln(tw)
}

func orNone(s *string) string {
	if s == nil {
		return "None"
	}
	return *s
}
