package votectl

import (
	"fmt"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/config"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/election"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/elections/scheduler"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/logging"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/store"
)

type resetRequest struct {
	ElectionID string `json:"election_id"`
	Scope      string `json:"scope"`
	Confirm    string `json:"confirm,omitempty"`
}

type resetResponse struct {
	Deleted int64 `json:"deleted"`
}

// newResetCmd wraps Events' POST /api/admin/reset-election.
func newResetCmd() *cobra.Command {
	var scope, electionID, confirm string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset a member's (or every member's) election token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(flagToken, flagEventsURL, flagElectionsURL)
			var out resetResponse
			req := resetRequest{ElectionID: electionID, Scope: scope, Confirm: confirm}
			if err := c.eventsPost(ctx(), "/api/admin/reset-election", req, &out); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "reset complete: %d token(s) deleted\n", out.Deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "mine", "reset scope: mine or all")
	cmd.Flags().StringVar(&electionID, "election-id", "", "election id (required for scope=mine)")
	cmd.Flags().StringVar(&confirm, "confirm", "", `confirmation phrase, "RESET ALL", required for scope=all`)
	return cmd
}

// electionLifecycleCmds lists the simple transition subcommands, each of
// which POSTs to the matching Elections admin endpoint with no body.
var electionLifecycleCmds = []string{"publish", "pause", "resume", "close", "archive", "hide", "unhide", "anonymize"}

func newElectionCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "election",
		Short: "Manage an election's lifecycle and post-close anonymisation",
	}

	for _, action := range electionLifecycleCmds {
		action := action
		root.AddCommand(&cobra.Command{
			Use:   fmt.Sprintf("%s <election-id>", action),
			Short: fmt.Sprintf("Run the %s admin transition", action),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c := newClient(flagToken, flagEventsURL, flagElectionsURL)
				path := fmt.Sprintf("/api/admin/elections/%s/%s", args[0], action)
				if err := c.electionsPost(ctx(), path, nil, nil); err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%s: %s ok\n", args[0], action)
				return nil
			},
		})
	}

	return root
}

// newSchedulerCmd drives the scheduled_start/scheduled_end transitions
// directly against Postgres, outside the long-running service
// loop, for operators who need to force a tick without waiting for
// SCHEDULER_TICK.
func newSchedulerCmd() *cobra.Command {
	root := &cobra.Command{Use: "scheduler", Short: "Drive the election scheduling loop"}

	root.AddCommand(&cobra.Command{
		Use:   "tick",
		Short: "Run one scheduling pass immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadShared()
			if err != nil {
				return err
			}
			log := logging.New("votectl", cfg.LogFormat, cfg.LogLevel)

			c := ctx()
			pool, err := store.NewPool(c, cfg.DSN())
			if err != nil {
				return err
			}
			defer pool.Close()

			electionStore := election.NewStore(pool)
			auditWriter := audit.NewWriter(pool, "elections", log)
			sched := scheduler.New(pool, electionStore, auditWriter, clockwork.NewRealClock(), cfg.SchedulerTick, log)

			if err := sched.TickOnce(c); err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, "scheduler tick complete")
			return nil
		},
	})

	return root
}
