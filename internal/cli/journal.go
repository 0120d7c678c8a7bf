package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/framerpc/internal/infra/storage/postgres"
)

var journalLimit int

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show the most recent calls recorded in the database",
	RunE:  runJournal,
}

func init() {
	journalCmd.Flags().IntVar(&journalLimit, "limit", 20, "number of calls to show")
	rootCmd.AddCommand(journalCmd)
}

func runJournal(cmd *cobra.Command, args []string) error {
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is not configured")
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	recs, err := postgres.NewJournalRepo(db).Recent(ctx, journalLimit)
	if err != nil {
		slog.Error("Failed to query call journal", "error", err)
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STARTED\tMETHOD\tENDPOINT\tATTEMPTS\tOUTCOME\tDURATION\tERROR")

	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%v\t%s\n",
			r.StartedAt.Local().Format(time.RFC3339),
			r.Method,
			r.Endpoint,
			r.Attempts,
			r.Outcome,
			r.Duration.Round(time.Millisecond),
			r.ErrorKind,
		)
	}
	return w.Flush()
}
