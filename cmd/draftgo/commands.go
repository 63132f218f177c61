package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/draftgo-dev/draftgo"
	"github.com/draftgo-dev/draftgo/pkg/credit"
	"github.com/draftgo-dev/draftgo/pkg/session"
)

var (
	grantPool   string
	grantAmount int64

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the current draft, if any",
		RunE:  runStatus,
	}
	scanCmd = &cobra.Command{
		Use:   "scan [image...]",
		Short: "Attach receipt images and run a metered analysis",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runScan,
	}
	saveCmd = &cobra.Command{
		Use:   "save",
		Short: "Save the current draft to the records store",
		RunE:  runSave,
	}
	discardCmd = &cobra.Command{
		Use:     "discard",
		Aliases: []string{"clear"},
		Short:   "Discard the current draft",
		RunE:    runDiscard,
	}
	balanceCmd = &cobra.Command{
		Use:   "balance",
		Short: "Show scan credit balances",
		RunE:  runBalance,
	}
	grantCmd = &cobra.Command{
		Use:   "grant",
		Short: "Grant scan credits to a pool",
		RunE:  runGrant,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the metrics/health server and the draft sweeper",
		RunE:  runServe,
	}
)

// openApp wires an App from the configured backends with terminal prompts
// for discard confirmation.
func openApp(ctx context.Context) (*draftgo.App, error) {
	cfg := loadConfig()
	return draftgo.Open(ctx, cfg, draftgo.WithConfirmer(linerConfirmer{}))
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	s, ok, err := app.Resume(ctx)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("No draft in progress.")
		return nil
	}

	fmt.Printf("State:       %s\n", s.State)
	fmt.Printf("Origin:      %s\n", s.Origin)
	if s.RecordID != "" {
		fmt.Printf("Record:      %s\n", s.RecordID)
	}
	if s.Record.Vendor != "" {
		fmt.Printf("Vendor:      %s\n", s.Record.Vendor)
	}
	if s.Record.Total != 0 {
		fmt.Printf("Total:       %s\n", formatAmount(s.Record.Total, s.Record.Currency))
	}
	fmt.Printf("Attachments: %d\n", len(s.Attachments))
	fmt.Printf("Unsaved:     %t\n", app.Machine.HasUnsavedChanges())
	fmt.Printf("Credit used: %t\n", app.Machine.IsCreditSpent())
	fmt.Printf("Scan button: %s\n", app.Machine.ScanButton())
	if s.LastError != "" {
		fmt.Printf("Last error:  %s\n", s.LastError)
	}
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	if _, _, err := app.Resume(ctx); err != nil {
		return err
	}

	if conflict := app.Resolver.Evaluate(); conflict != nil {
		fmt.Printf("A draft is already in progress (%s).\n", conflict.Reason)
		return app.Resolver.Resolve(ctx, session.ResolutionDiscardAndProceed, func(ctx context.Context) error {
			return scanFiles(ctx, app, args)
		})
	}
	return scanFiles(ctx, app, args)
}

func scanFiles(ctx context.Context, app *draftgo.App, paths []string) error {
	events := make(chan session.Event, 16)
	app.Machine.Subscribe(func(ev session.Event) {
		select {
		case events <- ev:
		default:
		}
	})

	for _, p := range paths {
		att, err := readAttachment(p)
		if err != nil {
			return err
		}
		if err := app.Machine.Attach(ctx, att); err != nil {
			var tooLarge *session.PayloadTooLargeError
			if errors.As(err, &tooLarge) {
				log.Printf("Warning: %s exceeds the persistence ceiling; the draft will survive restarts without its images", filepath.Base(p))
				continue
			}
			return err
		}
	}

	if err := app.Machine.BeginAnalysis(ctx); err != nil {
		var insufficient *credit.InsufficientCreditError
		if errors.As(err, &insufficient) {
			fmt.Printf("Not enough credits: %s\n", insufficient.Error())
			fmt.Println("Use 'draftgo grant' to add credits.")
			return nil
		}
		return err
	}
	fmt.Println("Analyzing...")

	for {
		select {
		case ev := <-events:
			switch ev.To {
			case session.StateAnalysisComplete:
				s := app.Machine.Session()
				fmt.Println("Analysis complete:")
				fmt.Printf("  Vendor:   %s\n", s.Record.Vendor)
				fmt.Printf("  Total:    %s\n", formatAmount(s.Record.Total, s.Record.Currency))
				if s.Record.Category != "" {
					fmt.Printf("  Category: %s\n", s.Record.Category)
				}
				if !s.Record.PurchasedAt.IsZero() {
					fmt.Printf("  Date:     %s\n", s.Record.PurchasedAt.Format("2006-01-02"))
				}
				fmt.Println("Review the draft with 'draftgo status', then 'draftgo save'.")
				return nil
			case session.StateAnalysisFailed:
				s := app.Machine.Session()
				fmt.Printf("Analysis failed: %s\n", s.LastError)
				fmt.Println("The reserved credit was returned. Run 'draftgo scan' again to retry.")
				return nil
			}
		case <-ctx.Done():
			app.Machine.CancelAnalysis()
			return ctx.Err()
		}
	}
}

func runSave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	if _, ok, err := app.Resume(ctx); err != nil {
		return err
	} else if !ok {
		fmt.Println("No draft in progress.")
		return nil
	}

	// The editor must be open before a draft-state session can save.
	if st := app.Machine.State(); st != session.StateEditing && st != session.StateAnalysisComplete {
		if err := app.Machine.OpenEditor(ctx); err != nil {
			return err
		}
	}

	if err := app.SaveCurrent(ctx); err != nil {
		return err
	}
	fmt.Println("Draft saved.")
	return nil
}

func runDiscard(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	if _, ok, err := app.Resume(ctx); err != nil {
		return err
	} else if !ok {
		fmt.Println("No draft in progress.")
		return nil
	}

	outcome, err := app.Machine.Discard(ctx)
	if err != nil {
		return err
	}
	if !outcome.Confirmed {
		fmt.Println("Kept the draft.")
		return nil
	}
	if outcome.CreditForfeited {
		fmt.Println("Draft discarded. The spent credit was not returned.")
	} else {
		fmt.Println("Draft discarded.")
	}
	return nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	for _, pool := range credit.Pools {
		bal, err := app.Ledger.Balance(ctx, pool)
		if err != nil {
			return err
		}
		fmt.Printf("%-9s available %3d, reserved %d\n", pool, bal.Available, bal.Reserved)
	}
	return nil
}

func runGrant(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	pool := credit.Pool(grantPool)
	if err := app.Ledger.Grant(ctx, pool, grantAmount); err != nil {
		return err
	}
	bal, err := app.Ledger.Balance(ctx, pool)
	if err != nil {
		return err
	}
	fmt.Printf("Granted %d %s credit(s); %d available.\n", grantAmount, pool, bal.Available)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(app)

	log.Printf("draftgo v%s serving", Version)
	return app.Run(ctx)
}

func closeApp(app *draftgo.App) {
	if err := app.Close(); err != nil {
		log.Printf("Warning: Failed to close backends: %v", err)
	}
}

// readAttachment loads an image file into an attachment, sniffing the MIME
// type from the extension first and the content second.
func readAttachment(path string) (session.Attachment, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is an operator-supplied argument
	if err != nil {
		return session.Attachment{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		mt = http.DetectContentType(data)
	}

	return session.Attachment{
		Name: filepath.Base(path),
		MIME: mt,
		Data: data,
	}, nil
}

func formatAmount(total int64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%d.%02d", total/100, total%100)
	}
	return fmt.Sprintf("%d.%02d %s", total/100, total%100, currency)
}
