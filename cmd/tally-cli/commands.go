package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/stats"
)

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

// parse wraps flag errors so they exit with the usage status.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 && fs.Name() != "budget" {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login", a.out)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := parse(fs, args); err != nil {
		return err
	}

	sess, err := a.sessions.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s <%s>\n", sess.Name, sess.Email)
	return nil
}

func (a *app) signup(ctx context.Context, args []string) error {
	fs := newFlagSet("signup", a.out)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	name := fs.String("name", "", "display name (defaults to the email's local part)")
	if err := parse(fs, args); err != nil {
		return err
	}

	sess, err := a.sessions.Signup(ctx, *email, *password, *name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Welcome, %s! You are now logged in.\n", sess.Name)
	return nil
}

func (a *app) logout(ctx context.Context, args []string) error {
	if err := parse(newFlagSet("logout", a.out), args); err != nil {
		return err
	}
	if err := a.sessions.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *app) whoami(_ context.Context, args []string) error {
	if err := parse(newFlagSet("whoami", a.out), args); err != nil {
		return err
	}
	sess, ok := a.sessions.Current()
	if !ok {
		return errNotLoggedIn
	}
	fmt.Fprintf(a.out, "%s <%s>\nid: %s\n", sess.Name, sess.Email, sess.ID)
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := newFlagSet("add", a.out)
	desc := fs.String("desc", "", "description")
	amount := fs.String("amount", "", "amount, e.g. 12.50")
	category := fs.String("category", "", "category (see 'tally-cli budget')")
	date := fs.String("date", "", "date as YYYY-MM-DD (default today)")
	if err := parse(fs, args); err != nil {
		return err
	}

	in := ledger.NewExpense{Description: *desc, Category: *category}
	var err error
	if in.Amount, err = core.ParseAmount(*amount); err != nil {
		return err
	}
	if *date != "" {
		if in.Date, err = core.ParseDate(*date); err != nil {
			return err
		}
	}

	e, err := a.svc.Add(ctx, a.userID(), in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s: %s %s (%s) on %s\n",
		e.ID, e.Description, core.FormatAmount(e.Amount), e.Category, e.Date)
	return nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := newFlagSet("edit", a.out)
	id := fs.String("id", "", "expense id")
	desc := fs.String("desc", "", "new description")
	amount := fs.String("amount", "", "new amount")
	category := fs.String("category", "", "new category")
	date := fs.String("date", "", "new date as YYYY-MM-DD")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}

	// only flags given on the command line are changed
	var patch ledger.Patch
	var perr error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "desc":
			patch.Description = desc
		case "category":
			patch.Category = category
		case "amount":
			d, err := core.ParseAmount(*amount)
			if err != nil {
				perr = err
				return
			}
			patch.Amount = &d
		case "date":
			d, err := core.ParseDate(*date)
			if err != nil {
				perr = err
				return
			}
			patch.Date = &d
		}
	})
	if perr != nil {
		return perr
	}
	if patch.Empty() {
		return fmt.Errorf("%w: nothing to change", errUsage)
	}

	e, err := a.svc.Update(ctx, a.userID(), *id, patch)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Updated %s: %s %s (%s) on %s\n",
		e.ID, e.Description, core.FormatAmount(e.Amount), e.Category, e.Date)
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	fs := newFlagSet("rm", a.out)
	id := fs.String("id", "", "expense id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("%w: -id is required", errUsage)
	}
	if err := a.svc.Delete(ctx, a.userID(), *id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Deleted %s\n", *id)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list", a.out)
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	category := fs.String("category", "", "only this category")
	if err := parse(fs, args); err != nil {
		return err
	}

	items, err := a.svc.List(ctx, a.userID())
	if err != nil {
		return err
	}
	if *category != "" {
		items = slices.DeleteFunc(items, func(e core.Expense) bool { return e.Category != *category })
	}
	items = stats.Recent(items, len(items))

	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, "No expenses yet")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tAMOUNT\tCATEGORY\tDESCRIPTION")
	for _, e := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Date, core.FormatAmount(e.Amount), e.Category, e.Description)
	}
	return tw.Flush()
}

// budget prints the budgets, or replaces them when given Category=amount
// arguments. "Category=" clears one entry.
func (a *app) budget(ctx context.Context, args []string) error {
	fs := newFlagSet("budget", a.out)
	if err := parse(fs, args); err != nil {
		return err
	}
	uid := a.userID()

	current, err := a.svc.Budgets(ctx, uid)
	if err != nil {
		return err
	}

	if fs.NArg() > 0 {
		next := current.Clone()
		for _, arg := range fs.Args() {
			name, value, ok := strings.Cut(arg, "=")
			if !ok || strings.TrimSpace(name) == "" {
				return fmt.Errorf("%w: expected Category=amount, got %q", errUsage, arg)
			}
			name = strings.TrimSpace(name)
			if strings.TrimSpace(value) == "" {
				delete(next, name)
				continue
			}
			amount, err := core.ParseAmount(value)
			if err != nil {
				return err
			}
			next[name] = amount
		}
		if err := a.svc.SetBudgets(ctx, uid, next); err != nil {
			return err
		}
		current = next
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tBUDGET")
	for _, name := range a.svc.Categories() {
		amount, ok := current.Lookup(name)
		value := "-"
		if ok {
			value = core.FormatAmount(amount)
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, value)
	}
	return tw.Flush()
}

func (a *app) stats(ctx context.Context, args []string) error {
	fs := newFlagSet("stats", a.out)
	months := fs.Int("months", stats.DefaultTrendMonths, "months in the trend")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *months < 1 {
		return fmt.Errorf("%w: -months must be at least 1", errUsage)
	}

	s, err := a.svc.Summary(ctx, a.userID(), *months)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(a.out, "Expenses:   %d\n", s.Count)
	fmt.Fprintf(a.out, "Total:      %s\n", core.FormatAmount(s.Total))
	fmt.Fprintf(a.out, "This month: %s\n\n", core.FormatAmount(s.ThisMonth))

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tSPENT\tBUDGET\tSTATUS")
	for _, b := range s.Budgets {
		status := "ok"
		if b.Over {
			status = "over"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Category, core.FormatAmount(b.Spent), core.FormatAmount(b.Budget), status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(a.out)
	tw = tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tTOTAL")
	for _, m := range s.Trend {
		fmt.Fprintf(tw, "%s\t%s\n", m.Label, core.FormatAmount(m.Amount))
	}
	return tw.Flush()
}

func (a *app) export(ctx context.Context, args []string) error {
	fs := newFlagSet("export", a.out)
	format := fs.String("format", "csv", "csv, json or yaml")
	out := fs.String("o", "", "output file; - for stdout (default expenses_<date>.<ext>)")
	if err := parse(fs, args); err != nil {
		return err
	}

	exp, err := a.svc.Export(ctx, a.userID(), *format)
	if err != nil {
		return err
	}
	if *out == "-" {
		_, err := a.out.Write(exp.Body)
		return err
	}

	path := *out
	if path == "" {
		path = exp.Filename
	}
	if err := os.WriteFile(path, exp.Body, 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	fmt.Fprintf(a.out, "Exported to %s\n", path)
	return nil
}
