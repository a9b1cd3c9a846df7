package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reportline/internal/cadence"
	"reportline/internal/config"
	"reportline/internal/db"
	"reportline/internal/domain"
	"reportline/internal/engine"
	"reportline/internal/migrate"
	"reportline/internal/repo"
	"reportline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Reportline CLI",
	Long: `Reportline tracks which organizations owe reports on which projects.
Core concepts:
- Workspace: your .reportline directory holding the database; reportline.yml holds schedule presets.
- Organization: a reporting party identified by email; wrangler orgs administer the workspace.
- Project: a body of work organizations report on.
- Link: the org-to-project relationship carrying the reporting schedule, due date, streak, and submission history.
- Schedule: none, daily, weekly (day of week), or monthly (day of month, clamped to short months).
- Expectation: a named data shape (columns with null/integer rules) that projects collect rows against.
- Event log: diary of changes, view with 'rl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("REPORTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(orgCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(expectationCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(submitCmd())
	rootCmd.AddCommand(complianceCmd())
	rootCmd.AddCommand(dataCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default reportline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			name := "workspace"
			if abs, err := os.Getwd(); err == nil {
				name = abs
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(name)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrIndent(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a config file without installing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.FromFile(args[0]); err != nil {
				return err
			}
			fmt.Println(args[0], "is valid")
			return nil
		},
	})
	return cfg
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show workspace status",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				version, err := migrate.Version(r.DB)
				if err != nil {
					return err
				}
				orgs, err := r.ListOrgs(ctx)
				if err != nil {
					return err
				}
				projects, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrIndent(map[string]any{
					"database":       db.Path(workspace),
					"schema_version": version,
					"organizations":  len(orgs),
					"projects":       len(projects),
				})
			})
		},
	}
}

func orgCmd() *cobra.Command {
	org := &cobra.Command{Use: "org", Short: "Manage organizations"}
	org.AddCommand(orgCreateCmd())
	org.AddCommand(orgUpdateCmd())
	org.AddCommand(orgListCmd())
	org.AddCommand(orgShowCmd())
	org.AddCommand(orgDeleteCmd())
	return org
}

func orgCreateCmd() *cobra.Command {
	var name, email string
	var wrangler bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || email == "" {
				return fmt.Errorf("--name and --email required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOrg(ctx, name, email, wrangler, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(o)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "organization name")
	cmd.Flags().StringVar(&email, "email", "", "organization email")
	cmd.Flags().BoolVar(&wrangler, "wrangler", false, "grant wrangler access")
	return cmd
}

func orgUpdateCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "update <org-id>",
		Short: "Update organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var wrangler *bool
			if cmd.Flags().Changed("wrangler") {
				v, _ := cmd.Flags().GetBool("wrangler")
				wrangler = &v
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpdateOrg(ctx, args[0], name, email, wrangler); err != nil {
					return err
				}
				o, err := r.GetOrg(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(o)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "organization name")
	cmd.Flags().StringVar(&email, "email", "", "organization email")
	cmd.Flags().Bool("wrangler", false, "grant or revoke wrangler access")
	return cmd
}

func orgListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List organizations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListOrgs(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Wrangler"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.Name, o.Email, o.IsWrangler})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func orgShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <org-id>",
		Short: "Show organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				o, err := r.GetOrg(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(o)
			})
		},
	}
	return cmd
}

func orgDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <org-id>",
		Short: "Delete organization and its links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteOrg(ctx, args[0])
			})
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectDeleteCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, name, desc, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "project description")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete project and its links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteProject(ctx, args[0])
			})
		},
	}
}

func expectationCmd() *cobra.Command {
	exp := &cobra.Command{Use: "expectation", Short: "Manage data expectations"}
	exp.AddCommand(expectationCreateCmd())
	exp.AddCommand(expectationListCmd())
	exp.AddCommand(expectationAttachCmd())
	exp.AddCommand(expectationDetachCmd())
	exp.AddCommand(expectationDeleteCmd())
	return exp
}

func expectationDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <expectation-id>",
		Short: "Delete expectation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteExpectation(ctx, args[0])
			})
		},
	}
}

func expectationCreateCmd() *cobra.Command {
	var name, columnsJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create expectation",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			var cols []domain.ExpectationColumn
			if columnsJSON != "" {
				if err := json.Unmarshal([]byte(columnsJSON), &cols); err != nil {
					return fmt.Errorf("invalid --columns: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				exp, err := e.CreateExpectation(ctx, name, cols, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(exp)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "expectation name")
	cmd.Flags().StringVar(&columnsJSON, "columns", "", `column rules, e.g. '[{"name":"count","must_be_int":true}]'`)
	return cmd
}

func expectationListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List expectations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListExpectations(ctx)
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
}

func expectationAttachCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "attach <expectation-id>",
		Short: "Attach expectation to a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetExpectation(ctx, args[0]); err != nil {
					return err
				}
				if _, err := r.GetProject(ctx, projectID); err != nil {
					return err
				}
				return r.AttachExpectation(ctx, args[0], projectID)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func expectationDetachCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "detach <expectation-id>",
		Short: "Detach expectation from a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DetachExpectation(ctx, args[0], projectID)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func linkCmd() *cobra.Command {
	lnk := &cobra.Command{Use: "link", Short: "Manage org-project reporting links"}
	lnk.AddCommand(linkCreateCmd())
	lnk.AddCommand(linkShowCmd())
	lnk.AddCommand(linkListCmd())
	lnk.AddCommand(linkScheduleCmd())
	lnk.AddCommand(linkDeleteCmd())
	return lnk
}

func scheduleFlags(cmd *cobra.Command, interval, preset *string, dayOfWeek, dayOfMonth *int) {
	cmd.Flags().StringVar(interval, "interval", "", "reporting interval: none, daily, weekly, monthly")
	cmd.Flags().StringVar(preset, "preset", "", "schedule preset from reportline.yml")
	cmd.Flags().IntVar(dayOfWeek, "day-of-week", -1, "weekly anchor day, 0=Sunday..6=Saturday")
	cmd.Flags().IntVar(dayOfMonth, "day-of-month", 0, "monthly anchor day, 1..31")
}

// resolveSchedule merges --preset with explicit flags, explicit flags
// winning.
func resolveSchedule(interval, preset string, dayOfWeek, dayOfMonth int) (engine.LinkOptions, error) {
	opts := engine.LinkOptions{Interval: interval}
	if preset != "" {
		cfg, err := config.Load(viper.GetString("workspace"))
		if err != nil {
			return opts, err
		}
		p, err := cfg.Preset(preset)
		if err != nil {
			return opts, err
		}
		if opts.Interval == "" {
			opts.Interval = p.Interval
		}
		opts.DayOfWeek = p.DayOfWeek
		opts.DayOfMonth = p.DayOfMonth
	}
	if dayOfWeek >= 0 {
		v := dayOfWeek
		opts.DayOfWeek = &v
	}
	if dayOfMonth > 0 {
		v := dayOfMonth
		opts.DayOfMonth = &v
	}
	return opts, nil
}

func linkCreateCmd() *cobra.Command {
	var orgID, projectID, interval, preset string
	var dayOfWeek, dayOfMonth int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Link an org to a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" || projectID == "" {
				return fmt.Errorf("--org and --project required")
			}
			opts, err := resolveSchedule(interval, preset, dayOfWeek, dayOfMonth)
			if err != nil {
				return err
			}
			opts.OrgID = orgID
			opts.ProjectID = projectID
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.CreateLink(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(l)
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "org id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	scheduleFlags(cmd, &interval, &preset, &dayOfWeek, &dayOfMonth)
	return cmd
}

func linkScheduleCmd() *cobra.Command {
	var orgID, projectID, interval, preset string
	var dayOfWeek, dayOfMonth int
	cmd := &cobra.Command{
		Use:   "set-schedule",
		Short: "Replace a link's reporting schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" || projectID == "" {
				return fmt.Errorf("--org and --project required")
			}
			opts, err := resolveSchedule(interval, preset, dayOfWeek, dayOfMonth)
			if err != nil {
				return err
			}
			opts.OrgID = orgID
			opts.ProjectID = projectID
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.UpdateSchedule(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(l)
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "org id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	scheduleFlags(cmd, &interval, &preset, &dayOfWeek, &dayOfMonth)
	return cmd
}

func linkShowCmd() *cobra.Command {
	var orgID, projectID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a link with compliance status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" || projectID == "" {
				return fmt.Errorf("--org and --project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, c, err := e.Compliance(ctx, orgID, projectID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(map[string]any{"link": l, "compliance": c})
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "org id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func linkListCmd() *cobra.Command {
	var orgID, projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List links by org or project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (orgID == "") == (projectID == "") {
				return fmt.Errorf("exactly one of --org or --project required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				var (
					items []domain.ReportingLink
					err   error
				)
				if orgID != "" {
					items, err = r.ListLinksByOrg(ctx, orgID)
				} else {
					items, err = r.ListLinksByProject(ctx, projectID)
				}
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "org id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func linkDeleteCmd() *cobra.Command {
	var orgID, projectID string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Unlink an org from a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" || projectID == "" {
				return fmt.Errorf("--org and --project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Unlink(ctx, orgID, projectID, viper.GetString("actor-id"))
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "org id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func submitCmd() *cobra.Command {
	var orgID, projectID string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Record a report submission",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" || projectID == "" {
				return fmt.Errorf("--org and --project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, recorded, err := e.RecordSubmission(ctx, orgID, projectID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if !recorded {
					fmt.Println("no active schedule; nothing recorded")
					return nil
				}
				if viper.GetBool("json") {
					return printJSON(l)
				}
				onTime := "LATE"
				if len(l.History) > 0 && l.History[0].WasOnTime {
					onTime = "on time"
				}
				fmt.Printf("Recorded %s submission. Streak: %d\n", onTime, l.Streak)
				if l.NextDue != nil {
					fmt.Println("Next due:", *l.NextDue)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "org id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func complianceCmd() *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Show compliance for all of an org's links",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" {
				return fmt.Errorf("--org required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListLinksByOrg(ctx, orgID)
				if err != nil {
					return err
				}
				now := e.Now()
				if viper.GetBool("json") {
					out := make([]map[string]any, 0, len(items))
					for _, l := range items {
						out = append(out, map[string]any{"link": l, "compliance": cadence.Classify(l, now)})
					}
					return printJSON(out)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Project", "Status", "Streak", "Next Due", "Message"})
				for _, l := range items {
					c := cadence.Classify(l, now)
					due := ""
					if l.NextDue != nil {
						due = *l.NextDue
					}
					tw.AppendRow(table.Row{l.ProjectID, c.Status, l.Streak, due, c.Message})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "org id")
	return cmd
}

func dataCmd() *cobra.Command {
	data := &cobra.Command{Use: "data", Short: "Collected data"}
	data.AddCommand(dataRecordCmd())
	data.AddCommand(dataListCmd())
	return data
}

func dataRecordCmd() *cobra.Command {
	var projectID, expectationID, valuesJSON string
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a validated data row",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" || expectationID == "" {
				return fmt.Errorf("--project and --expectation required")
			}
			var values map[string]string
			if err := json.Unmarshal([]byte(valuesJSON), &values); err != nil {
				return fmt.Errorf("invalid --values: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entry, err := e.RecordData(ctx, engine.DataOptions{
					ProjectID:     projectID,
					ExpectationID: expectationID,
					Values:        values,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrIndent(entry)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&expectationID, "expectation", "", "expectation id")
	cmd.Flags().StringVar(&valuesJSON, "values", "{}", `row values, e.g. '{"site":"north","count":"3"}'`)
	return cmd
}

func dataListCmd() *cobra.Command {
	var projectID, expectationID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List collected data for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectID == "" {
				return fmt.Errorf("--project required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListCollected(ctx, projectID, expectationID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&expectationID, "expectation", "", "expectation id filter")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var orgID string
	var n int
	var before int64
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events for an org",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" {
				return fmt.Errorf("--org required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Events.Tail(ctx, orgID, n, before)
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "org id")
	cmd.Flags().IntVarP(&n, "lines", "n", 20, "number of events")
	cmd.Flags().Int64Var(&before, "before", 0, "only events older than this id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyDeleteCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var orgID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for an org",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" {
				return fmt.Errorf("--org required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key, plain, err := e.CreateAPIKey(ctx, orgID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "org_id": key.OrgID, "name": key.Name, "key": plain})
				}
				fmt.Println("API key (shown once):", plain)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "org id")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var orgID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, orgID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(items)
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "org id filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("REPORTLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("REPORTLINE_JWT_SECRET is required for bearer auth")
			}
			if addr == "" {
				addr = "127.0.0.1:8787"
				if cfg != nil && cfg.Server.Addr != "" {
					addr = cfg.Server.Addr
				}
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Reportline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrIndent(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
