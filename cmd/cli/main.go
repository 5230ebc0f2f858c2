package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/finance-ledger/internal/aggregate"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/session"
	"github.com/shopspring/decimal"
)

const commandTimeout = 2 * time.Minute

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	var err error

	switch os.Args[1] {
	case "login":
		err = runLogin(args)
	case "list":
		err = runList(args)
	case "summary":
		err = runSummary(args)
	case "add":
		err = runAdd(args)
	case "update":
		err = runUpdate(args)
	case "delete":
		err = runDelete(args)
	case "profile":
		err = runProfile(args)
	case "archive":
		err = runArchive(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if domain.IsAuth(err) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Finance Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  login     Sign in and print the access token")
	fmt.Println("  list      List transactions, newest first")
	fmt.Println("  summary   Show totals, category breakdown and daily balance")
	fmt.Println("  add       Record a new income or expense")
	fmt.Println("  update    Replace an existing transaction")
	fmt.Println("  delete    Delete a transaction")
	fmt.Println("  profile   Show or update the user profile")
	fmt.Println("  archive   Archive a snapshot to GCS, or fetch one")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nEvery command accepts -config and -api. The token is read from")
	fmt.Println("LEDGER_CREDENTIAL_TOKEN or credential.token in the config file.")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runLogin(args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	cfgPath, baseURL := commonFlags(fs)
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password (default $LEDGER_PASSWORD)")
	fs.Parse(args)

	if *password == "" {
		*password = os.Getenv("LEDGER_PASSWORD")
	}
	if *email == "" || *password == "" {
		return fmt.Errorf("usage: cli login -email EMAIL [-password PASSWORD]")
	}

	e, err := newEnv(*cfgPath, *baseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(e.context(context.Background()), commandTimeout)
	defer cancel()

	res, err := e.client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}

	e.log.Info().Str("email", res.User.Email).Msg("Logged in")
	fmt.Printf("export LEDGER_CREDENTIAL_TOKEN=%s\n", res.Token)
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	cfgPath, baseURL := commonFlags(fs)
	limit := fs.Int("limit", 0, "Show at most N transactions (0 = all)")
	tz := fs.String("tz", "", "Time zone for dates (default local)")
	fs.Parse(args)

	loc, err := loadLocation(*tz)
	if err != nil {
		return err
	}
	e, err := newEnv(*cfgPath, *baseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(e.context(context.Background()), commandTimeout)
	defer cancel()

	if err := e.store.Load(ctx); err != nil {
		return err
	}

	records := e.store.Snapshot().Records
	if *limit > 0 && *limit < len(records) {
		records = records[:*limit]
	}
	printRecords(os.Stdout, records, loc)
	return nil
}

func runSummary(args []string) error {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	cfgPath, baseURL := commonFlags(fs)
	tz := fs.String("tz", "", "Time zone for day buckets (default local)")
	baseline := fs.Bool("baseline", true, "Start the daily series with the declared income")
	fs.Parse(args)

	loc, err := loadLocation(*tz)
	if err != nil {
		return err
	}
	e, err := newEnv(*cfgPath, *baseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(e.context(context.Background()), commandTimeout)
	defer cancel()

	if err := session.Sync(ctx, e.store); err != nil {
		return err
	}

	sum := e.store.Summary(loc, aggregate.SeriesOptions{Baseline: *baseline, Anchor: time.Now()})
	printSummary(os.Stdout, sum)
	return nil
}

func draftFlags(fs *flag.FlagSet) *draftInput {
	in := &draftInput{}
	fs.StringVar(&in.title, "title", "", "Title")
	fs.StringVar(&in.description, "description", "", "Description")
	fs.StringVar(&in.category, "category", "", "Category: Food, Transport, Utilities, Entertainment, Health, Education, Other")
	fs.StringVar(&in.amount, "amount", "", "Amount, e.g. 12.50 (sign is ignored, use -kind)")
	fs.StringVar(&in.kind, "kind", "", "income or expense (default expense)")
	fs.StringVar(&in.date, "date", "", "Date as YYYY-MM-DD or RFC 3339 (default now)")
	return in
}

func runAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	cfgPath, baseURL := commonFlags(fs)
	in := draftFlags(fs)
	fs.Parse(args)

	draft, err := in.toDraft(time.Local)
	if err != nil {
		return err
	}
	e, err := newEnv(*cfgPath, *baseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(e.context(context.Background()), commandTimeout)
	defer cancel()

	rec, err := e.store.Add(ctx, draft)
	if err != nil {
		return err
	}

	fmt.Printf("Added %s: %s %s\n", rec.ID, signedMoney(rec), rec.Label())
	return nil
}

func runUpdate(args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	cfgPath, baseURL := commonFlags(fs)
	id := fs.String("id", "", "Transaction ID")
	in := draftFlags(fs)
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("usage: cli update -id ID -amount N [-title ...]")
	}
	draft, err := in.toDraft(time.Local)
	if err != nil {
		return err
	}
	e, err := newEnv(*cfgPath, *baseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(e.context(context.Background()), commandTimeout)
	defer cancel()

	rec, err := e.store.Update(ctx, *id, draft)
	if err != nil {
		return err
	}

	fmt.Printf("Updated %s: %s %s\n", rec.ID, signedMoney(rec), rec.Label())
	return nil
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	cfgPath, baseURL := commonFlags(fs)
	id := fs.String("id", "", "Transaction ID")
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("usage: cli delete -id ID")
	}
	e, err := newEnv(*cfgPath, *baseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(e.context(context.Background()), commandTimeout)
	defer cancel()

	if err := e.store.Delete(ctx, *id); err != nil {
		return err
	}

	fmt.Printf("Deleted %s\n", *id)
	return nil
}

func runProfile(args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	cfgPath, baseURL := commonFlags(fs)
	username := fs.String("username", "", "New username")
	fullName := fs.String("full-name", "", "New full name")
	income := fs.String("income", "", "New declared monthly income")
	fs.Parse(args)

	var patch domain.ProfilePatch
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "username":
			patch.Username = username
		case "full-name":
			patch.FullName = fullName
		}
	})
	if *income != "" {
		v, err := decimal.NewFromString(*income)
		if err != nil {
			return &domain.ValidationError{Field: "income", Reason: fmt.Sprintf("not numeric: %q", *income)}
		}
		patch.Income = &v
	}

	e, err := newEnv(*cfgPath, *baseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(e.context(context.Background()), commandTimeout)
	defer cancel()

	if patch.Empty() {
		if err := e.store.RefreshProfile(ctx); err != nil {
			return err
		}
		printProfile(os.Stdout, e.store.Snapshot().User)
		return nil
	}

	user, err := e.store.UpdateProfile(ctx, patch)
	if err != nil {
		return err
	}
	fmt.Println("Profile updated.")
	printProfile(os.Stdout, &user)
	return nil
}

func runArchive(args []string) error {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	cfgPath, baseURL := commonFlags(fs)
	fetch := fs.String("fetch", "", "gs:// URI of an archived snapshot to print instead of archiving")
	tz := fs.String("tz", "", "Time zone for day buckets (default local)")
	fs.Parse(args)

	loc, err := loadLocation(*tz)
	if err != nil {
		return err
	}
	e, err := newEnv(*cfgPath, *baseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(e.context(context.Background()), commandTimeout)
	defer cancel()

	a, gcs, err := e.archiver(ctx)
	if err != nil {
		return err
	}
	defer gcs.Close()

	if *fetch != "" {
		doc, err := a.Fetch(ctx, *fetch)
		if err != nil {
			return err
		}
		fmt.Printf("Snapshot generated at %s\n\n", doc.GeneratedAt.In(loc).Format(time.RFC3339))
		printProfile(os.Stdout, doc.User)
		fmt.Println()
		printSummary(os.Stdout, aggregate.Summary{
			Totals:     doc.Totals,
			Daily:      doc.Daily,
			Categories: doc.Categories,
			Expenses:   doc.Expenses,
		})
		return nil
	}

	if err := session.Sync(ctx, e.store); err != nil {
		return err
	}
	uri, err := a.Archive(ctx, e.store.Snapshot(), e.store.Summary(loc, aggregate.SeriesOptions{Baseline: true, Anchor: time.Now()}))
	if err != nil {
		return err
	}

	fmt.Printf("Archived snapshot to %s\n", uri)
	return nil
}
