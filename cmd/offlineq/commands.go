package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/app"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/config"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/logging"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/models"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/queue"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/uuid"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/validation"
)

const shutdownTimeout = 10 * time.Second

// Version is set at build time.
var Version = "0.1.0"

type cli struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "offlineq",
		Short:        "Offline action queue agent",
		Long:         "offlineq buffers API mutations while the backend is unreachable and replays them in order once connectivity returns.",
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			if c.logLevel != "" {
				cfg.Log.Level = c.logLevel
			}
			c.cfg = cfg
			logging.Init(os.Stderr, logging.ParseLevel(cfg.Log.Level))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to the TOML config (default ~/.config/safetrip/offline.toml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		c.serveCmd(),
		c.enqueueCmd(),
		c.listCmd(),
		c.syncCmd(),
		c.retryCmd(),
		c.removeCmd(),
		c.clearCmd(),
		c.hydrateCmd(),
	)
	return root
}

// withApp builds the agent, runs fn and closes it, keeping fn's error first.
func (c *cli) withApp(ctx context.Context, fn func(a *app.App) error) (err error) {
	a, err := app.Build(ctx, c.cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := a.Close(closeCtx); err == nil {
			err = cerr
		}
	}()
	return fn(a)
}

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the agent: connectivity watcher, replay scheduler and local API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return c.withApp(ctx, func(a *app.App) error {
				a.Scheduler.Start(ctx)
				return a.Server(ctx).Run(ctx)
			})
		},
	}
}

func (c *cli) enqueueCmd() *cobra.Command {
	var endpoint, method, data string
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Buffer a request for later replay",
		Example: `  offlineq enqueue --endpoint /alerts/panic --data '{"lat":27.17,"lng":78.04}'
  offlineq enqueue --endpoint /trips/42 --method DELETE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := validation.EnqueueRequest{
				Endpoint: endpoint,
				Method:   strings.ToUpper(strings.TrimSpace(method)),
			}
			if data != "" {
				if !json.Valid([]byte(data)) {
					return fmt.Errorf("--data is not valid JSON")
				}
				body.Data = json.RawMessage(data)
			}
			if err := validation.New().Struct(body); err != nil {
				return fmt.Errorf("invalid request: %v", validation.FieldErrors(err))
			}
			m, _ := models.ParseMethod(body.Method)

			return c.withApp(cmd.Context(), func(a *app.App) error {
				id := a.Store.Enqueue(queue.EnqueueRequest{
					Endpoint: body.Endpoint,
					Method:   m,
					Payload:  body.Data,
				})
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "API endpoint path, e.g. /alerts/panic")
	cmd.Flags().StringVar(&method, "method", string(models.MethodPost), "HTTP method: GET, POST, PUT or DELETE")
	cmd.Flags().StringVar(&data, "data", "", "JSON payload")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show queued requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				reqs := a.Store.List()
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]interface{}{
						"requests": reqs,
						"stats":    a.Store.Stats(),
					})
				}
				printTable(cmd.OutOrStdout(), reqs, time.Now())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printTable(out io.Writer, reqs []models.QueuedRequest, now time.Time) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMETHOD\tENDPOINT\tSTATUS\tRETRIES\tAGE\tLAST ERROR")
	for _, r := range reqs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Method, r.Endpoint, r.Status, r.Retries,
			now.Sub(r.CreatedAt).Truncate(time.Second), r.LastError)
	}
	_ = tw.Flush()
}

func (c *cli) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Probe the backend and replay pending requests once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app.App) error {
				out := cmd.OutOrStdout()
				if !a.Probe(ctx) {
					fmt.Fprintf(out, "backend unreachable, %d pending\n", a.Store.Stats().Pending)
					return nil
				}
				result := a.Orchestrator.Sync(ctx)
				fmt.Fprintf(out, "processed %d, failed %d, pending %d\n",
					result.Processed, result.Failed, a.Store.Stats().Pending)
				return nil
			})
		},
	}
}

func (c *cli) retryCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "retry [id]",
		Short: "Reset a failed request to pending",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return fmt.Errorf("pass an id or --all, not both")
			}
			if !all && len(args) != 1 {
				return fmt.Errorf("requires an id or --all")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				if all {
					fmt.Fprintf(cmd.OutOrStdout(), "reset %d\n", a.Store.RetryFailed())
					return nil
				}
				return a.Store.Retry(uuid.Normalize(args[0]))
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "reset every failed request")
	return cmd
}

func (c *cli) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Drop a queued request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				return a.Store.Remove(uuid.Normalize(args[0]))
			})
		},
	}
}

func (c *cli) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every queued request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				n := a.Store.Len()
				a.Store.Clear()
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d\n", n)
				return nil
			})
		},
	}
}

func (c *cli) hydrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hydrate",
		Short: "Merge requests the backend reports as buffered into the local queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app.App) error {
				added, err := a.Hydrator.Hydrate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %d\n", added)
				return nil
			})
		},
	}
}
