package votectl

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/audit"
)

// ExitCode is the process exit status: 0 success, 1
// validation/usage, 2 permission denied, 3 remote dependency failure, 4
// database error.
type ExitCode int

const (
	exitSuccess ExitCode = 0
	exitUsage   ExitCode = 1
)

var (
	flagToken        string
	flagActor        string
	flagEventsURL    string
	flagElectionsURL string
)

// Run builds and executes the votectl command tree against args (normally
// os.Args[1:]), returning the process exit code.
func Run(args []string) ExitCode {
	root := &cobra.Command{
		Use:           "votectl",
		Short:         "Operator CLI for the Ekklesia voting subsystem.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagToken, "token", os.Getenv("VOTECTL_TOKEN"), "bearer session token for the admin API (env: VOTECTL_TOKEN)")
	root.PersistentFlags().StringVar(&flagActor, "actor", os.Getenv("VOTECTL_ACTOR"), "operator identifier surfaced in audit output, masked before printing (env: VOTECTL_ACTOR)")
	root.PersistentFlags().StringVar(&flagEventsURL, "events-url", getenv("EVENTS_SERVICE_URL", "http://localhost:8080"), "Events service base URL")
	root.PersistentFlags().StringVar(&flagElectionsURL, "elections-url", getenv("ELECTIONS_SERVICE_URL", "http://localhost:8081"), "Elections service base URL")

	root.AddCommand(
		newResetCmd(),
		newElectionCmd(),
		newSchedulerCmd(),
	)
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		return report(err)
	}
	return exitSuccess
}

// report prints the failure with its cause code and a masked actor
// identifier, then returns the matching exit code.
func report(err error) ExitCode {
	appErr, ok := apperrors.As(err)
	if !ok {
		fmt.Fprintf(os.Stderr, "votectl: %v (actor=%s)\n", err, maskedActor())
		return exitUsage
	}
	fmt.Fprintf(os.Stderr, "votectl: %s: %s (actor=%s)\n", appErr.Kind, appErr.Message, maskedActor())
	return ExitCode(apperrors.ExitCode(appErr.Kind))
}

func maskedActor() string {
	if flagActor == "" {
		return "unknown"
	}
	return audit.MaskKennitala(flagActor)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func ctx() context.Context {
	return context.Background()
}
