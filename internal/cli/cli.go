// Package cli команды subscriptionctl для работы с записями о подписках
// и API идентификации.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/subscription-core/internal/app/subscriptioncore"
	"github.com/magabrotheeeer/subscription-core/internal/config"
	"github.com/magabrotheeeer/subscription-core/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-core/internal/models"
)

// ErrNotFound запись не найдена.
var ErrNotFound = errors.New("subscription not found")

type runner struct {
	cfgPath string
	opts    []subscriptioncore.Option
	app     *subscriptioncore.App
}

// NewRootCommand создаёт корневую команду. opts передаются в сборку App.
func NewRootCommand(opts ...subscriptioncore.Option) *cobra.Command {
	r := &runner{opts: opts}

	root := &cobra.Command{
		Use:           "subscriptionctl",
		Short:         "Manage user subscription records and remote plans",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return r.init(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&r.cfgPath, "config", "c", "", "config file path (defaults to CONFIG_PATH)")

	root.AddCommand(
		r.getCmd(),
		r.findCustomerCmd(),
		r.saveCmd(),
		r.deleteCmd(),
		r.setStatusCmd(),
		r.cancelCmd(),
		r.whoamiCmd(),
		r.statusCmd(),
		r.setPlanCmd(),
	)
	// PersistentPostRunE не вызывается после ошибки RunE, поэтому App
	// закрывается в обёртке каждой команды
	for _, cmd := range root.Commands() {
		if cmd.RunE != nil {
			cmd.RunE = r.closing(cmd.RunE)
		}
	}
	return root
}

func (r *runner) closing(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			err = errors.Join(err, r.close())
		}()
		return run(cmd, args)
	}
}

func (r *runner) close() error {
	if r.app == nil {
		return nil
	}
	err := r.app.Close()
	r.app = nil
	return err
}

func (r *runner) init(cmd *cobra.Command) error {
	// .env не обязателен
	_ = godotenv.Load()

	path := r.cfgPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		return errors.New("config path is not set: use --config or CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	logger := sl.NewWriter(cfg.Env, cmd.ErrOrStderr())
	app, err := subscriptioncore.New(cmd.Context(), cfg, logger, r.opts...)
	if err != nil {
		return err
	}
	r.app = app
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *runner) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <cuid>",
		Short: "Show the subscription record of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := r.app.Repository.GetByUserID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("%s: %w", args[0], ErrNotFound)
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func (r *runner) findCustomerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find-customer <stripe_customer_id>",
		Short: "Find a subscription record by billing customer id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := r.app.Repository.GetByStripeCustomerID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("customer %s: %w", args[0], ErrNotFound)
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func (r *runner) saveCmd() *cobra.Command {
	var (
		rec       models.Record
		plan      string
		status    string
		periodEnd string
	)
	cmd := &cobra.Command{
		Use:   "save <cuid>",
		Short: "Create or update a subscription record and sync the remote plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := models.ParsePlan(plan)
			if err != nil {
				return err
			}
			st, err := models.ParseStatus(status)
			if err != nil {
				return err
			}
			end, err := time.Parse(time.RFC3339, periodEnd)
			if err != nil {
				return fmt.Errorf("%w: current period end: %v", models.ErrValidation, err)
			}
			rec.PlanName = p
			rec.Status = st
			rec.CurrentPeriodEnd = end.UTC()
			if rec.PlanAmount == 0 {
				rec.PlanAmount = p.Amount()
			}

			saved, err := r.app.Service.Apply(cmd.Context(), args[0], rec)
			if saved != nil {
				if werr := writeJSON(cmd.OutOrStdout(), saved); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&rec.StripeCustomerID, "customer", "", "billing customer id")
	f.StringVar(&rec.StripeSubscriptionID, "subscription", "", "billing subscription id")
	f.StringVar(&rec.StripePriceID, "price", "", "billing price id")
	f.StringVar(&plan, "plan", "", "plan name (Basic, Standard, Pro)")
	f.IntVar(&rec.PlanAmount, "amount", 0, "plan amount, defaults to the plan price")
	f.StringVar(&status, "status", string(models.StatusActive), "subscription status")
	f.StringVar(&periodEnd, "period-end", "", "current period end, RFC 3339")
	for _, name := range []string{"customer", "subscription", "price", "plan", "period-end"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (r *runner) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <cuid>",
		Short: "Delete the subscription record of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := r.app.Service.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]bool{"deleted": ok})
		},
	}
}

func (r *runner) setStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-status <cuid> <status>",
		Short: "Update the subscription status without touching the remote plan",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := models.ParseStatus(args[1])
			if err != nil {
				return err
			}
			ok, err := r.app.Repository.UpdateStatus(cmd.Context(), args[0], st)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]bool{"updated": ok})
		},
	}
}

func (r *runner) cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <cuid>",
		Short: "Cancel a subscription and clear the remote plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := r.app.Service.Cancel(cmd.Context(), args[0])
			if werr := writeJSON(cmd.OutOrStdout(), map[string]bool{"canceled": ok}); werr != nil {
				return werr
			}
			return err
		},
	}
}

func (r *runner) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami <session_token>",
		Short: "Resolve a session token into a user identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := r.app.Identity.ResolveIdentity(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), u)
		},
	}
}

func (r *runner) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <session_token>",
		Short: "Show the subscription of the user behind a session token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := r.app.Service.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), info)
		},
	}
}

func (r *runner) setPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-plan <cuid> <plan>",
		Short: `Set the remote plan of a user ("" clears it)`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := r.app.Identity.UpdateRemotePlan(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}
