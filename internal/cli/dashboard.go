package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"training-portal/internal/app"
	"training-portal/internal/config"
	"training-portal/internal/logger"
)

// NewDashboardCmd prints the completion records of one account from the configured store.
func NewDashboardCmd(configPath *string) *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "List learner completion records of an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			st, err := openStores(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer st.close()
			return printDashboard(cmd.Context(), cmd.OutOrStdout(), app.NewDashboard(st.docs, log), account)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "company account id")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func printDashboard(ctx context.Context, out io.Writer, dashboard *app.Dashboard, account string) error {
	records, err := dashboard.Learners(ctx, account)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LEARNER\tSCORE\tMODE\tTIER\tCOMPLETED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d/%d\t%s\t%s\t%s\n",
			r.LearnerKey, r.Score, r.TotalQuestions, r.Mode, r.Tier(), r.CompletedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}
