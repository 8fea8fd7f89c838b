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

	"practiceflow/internal/app"
	"practiceflow/internal/config"
	"practiceflow/internal/db"
	"practiceflow/internal/engine"
	"practiceflow/internal/migrate"
	"practiceflow/internal/radar"
	"practiceflow/internal/repo"
	"practiceflow/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pf",
	Short: "Practiceflow CLI",
	Long: `Practiceflow keeps a therapy practice's incoming referrals, loose tasks
and announcements on one prioritized radar.
Core concepts:
- Workspace: your .practiceflow data directory; one practice per workspace.
- Referrals: new clients flowing NEW -> ACKNOWLEDGED -> CONTACT_IN_PROGRESS ->
  APPT_SCHEDULED -> INTAKE_READY, with INTAKE_BLOCKED when paperwork is missing.
- Stub tasks: everything that is not a referral (license renewals, billing,
  home life) but still competes for attention.
- Radar: every open item scored by consequence class, deadline decay and how
  long the owner has been putting it off, grouped into do_now / waiting /
  coming_up.
- Event log: diary of changes, view with 'pf log tail'.`,
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
	viper.SetEnvPrefix("PRACTICEFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	rootCmd.PersistentFlags().String("workspace-id", "", "workspace id (overrides single-workspace default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
	_ = viper.BindPFlag("workspace-id", rootCmd.PersistentFlags().Lookup("workspace-id"))
}

func registerCommands() {
	rootCmd.AddCommand(workspaceCmd())
	rootCmd.AddCommand(referralCmd())
	rootCmd.AddCommand(staffCmd())
	rootCmd.AddCommand(stubCmd())
	rootCmd.AddCommand(announceCmd())
	rootCmd.AddCommand(radarCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- workspace ---

func workspaceCmd() *cobra.Command {
	ws := &cobra.Command{Use: "workspace", Short: "Manage workspaces"}
	ws.AddCommand(workspaceInitCmd())
	ws.AddCommand(workspaceListCmd())
	ws.AddCommand(workspaceShowCmd())
	ws.AddCommand(workspaceConfigCmd())
	return ws
}

func workspaceInitCmd() *cobra.Command {
	var opts engine.WorkspaceInitOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a workspace with its owner profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, nil)
			w, err := e.InitWorkspace(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printJSONOrTable(w)
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "workspace id (generated when empty)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "workspace name")
	cmd.Flags().StringVar(&opts.Type, "type", "PRACTICE", "workspace type (PRACTICE, COACHING, HOME)")
	cmd.Flags().StringVar(&opts.OwnerName, "owner-name", "", "owner full name")
	cmd.Flags().StringVar(&opts.OwnerEmail, "owner-email", "", "owner email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("owner-name")
	return cmd
}

func workspaceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListWorkspaces(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func workspaceShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				w, err := e.Repo.GetWorkspace(ctx, wsID)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
}

func workspaceConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(workspaceConfigShowCmd())
	cfg.AddCommand(workspaceConfigImportCmd())
	return cfg
}

func workspaceConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show workspace config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func workspaceConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import workspace config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				target := cfg.Workspace.ID
				if target == "" {
					target = wsID
					cfg.Workspace.ID = wsID
				}
				if err := e.ImportConfig(ctx, target, cfg, viper.GetString("actor-id")); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// --- referrals ---

func referralCmd() *cobra.Command {
	ref := &cobra.Command{
		Use:   "referral",
		Short: "Manage referrals",
		Long:  "Referrals are incoming clients. They flow NEW -> ACKNOWLEDGED -> CONTACT_IN_PROGRESS -> APPT_SCHEDULED -> INTAKE_READY; missing paperwork parks them in INTAKE_BLOCKED.",
	}
	ref.AddCommand(referralAddCmd())
	ref.AddCommand(referralListCmd())
	ref.AddCommand(referralShowCmd())
	ref.AddCommand(referralAcknowledgeCmd())
	ref.AddCommand(referralContactCmd())
	ref.AddCommand(referralChecklistCmd())
	ref.AddCommand(referralUpdateCmd())
	ref.AddCommand(referralAssignCmd())
	return ref
}

func referralAddCmd() *cobra.Command {
	var opts engine.ReferralCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Intake a new referral",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.CreatedByID = opts.ActorID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				if opts.WorkspaceID == "" {
					opts.WorkspaceID = wsID
				}
				rf, err := e.CreateReferral(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rf)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "referral id (generated when empty)")
	cmd.Flags().StringVar(&opts.ClientName, "client-name", "", "client name")
	cmd.Flags().StringVar(&opts.ClientPhone, "phone", "", "client phone")
	cmd.Flags().StringVar(&opts.ClientEmail, "email", "", "client email")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee", "", "assigned staff profile id")
	cmd.Flags().StringVar(&opts.AcknowledgeBy, "acknowledge-by", "", "acknowledge-by date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.ContactBy, "contact-by", "", "contact-by date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("client-name")
	return cmd
}

func referralListCmd() *cobra.Command {
	var status, assignee string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List referrals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				items, err := e.Repo.ListReferrals(ctx, repo.ReferralFilters{
					WorkspaceID: wsID,
					Status:      status,
					AssigneeID:  assignee,
					Limit:       limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "CLIENT", "STATUS", "ACK BY", "CONTACT BY", "ASSIGNEE")
				for _, rf := range items {
					t.AppendRow(table.Row{rf.ID, rf.ClientName, rf.Status, rf.AcknowledgeBy, rf.ContactBy, strOrDash(rf.AssignedToProfileID)})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee profile id")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func referralShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a referral with its checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				rf, err := e.Repo.GetReferral(ctx, args[0])
				if err != nil {
					return err
				}
				cl, err := e.Repo.GetChecklist(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"referral": rf, "checklist": cl})
			})
		},
	}
	return cmd
}

func referralAcknowledgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acknowledge <id>",
		Short: "Acknowledge a referral",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				rf, err := e.AcknowledgeReferral(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rf)
			})
		},
	}
	return cmd
}

func referralContactCmd() *cobra.Command {
	var outcome, firstSession string
	cmd := &cobra.Command{
		Use:   "contact <id>",
		Short: "Record a contact attempt outcome",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				rf, err := e.RecordContactOutcome(ctx, args[0], outcome, firstSession, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rf)
			})
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "SCHEDULED, PENDING or NO_CONTACT")
	cmd.Flags().StringVar(&firstSession, "first-session-date", "", "first session date (YYYY-MM-DD, required for SCHEDULED)")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func referralChecklistCmd() *cobra.Command {
	var ackSigned, missingPayment, missingConsent, missingPrivacy bool
	cmd := &cobra.Command{
		Use:   "checklist <id>",
		Short: "Update intake checklist flags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ChecklistUpdateOptions{
				ReferralID: args[0],
				ActorID:    viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("ack-signed") {
				opts.AckSignedInEHR = &ackSigned
			}
			if cmd.Flags().Changed("missing-payment-auth") {
				opts.MissingPaymentAuth = &missingPayment
			}
			if cmd.Flags().Changed("missing-consent") {
				opts.MissingConsent = &missingConsent
			}
			if cmd.Flags().Changed("missing-privacy") {
				opts.MissingPrivacy = &missingPrivacy
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				cl, err := e.UpdateChecklist(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(cl)
			})
		},
	}
	cmd.Flags().BoolVar(&ackSigned, "ack-signed", false, "acknowledgement signed in the EHR")
	cmd.Flags().BoolVar(&missingPayment, "missing-payment-auth", false, "payment authorization missing")
	cmd.Flags().BoolVar(&missingConsent, "missing-consent", false, "consent form missing")
	cmd.Flags().BoolVar(&missingPrivacy, "missing-privacy", false, "privacy notice missing")
	return cmd
}

func referralUpdateCmd() *cobra.Command {
	var status, phone, email, contactBy, firstSession string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update referral fields or status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ReferralUpdateOptions{
				ID:      args[0],
				Status:  status,
				ActorID: viper.GetString("actor-id"),
				Force:   viper.GetBool("force"),
			}
			if cmd.Flags().Changed("phone") {
				opts.ClientPhone = &phone
			}
			if cmd.Flags().Changed("email") {
				opts.ClientEmail = &email
			}
			if cmd.Flags().Changed("contact-by") {
				opts.ContactBy = &contactBy
			}
			if cmd.Flags().Changed("first-session-date") {
				opts.FirstSessionDate = &firstSession
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				rf, err := e.UpdateReferral(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(rf)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "target status")
	cmd.Flags().StringVar(&phone, "phone", "", "client phone")
	cmd.Flags().StringVar(&email, "email", "", "client email")
	cmd.Flags().StringVar(&contactBy, "contact-by", "", "contact-by date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&firstSession, "first-session-date", "", "first session date (YYYY-MM-DD)")
	return cmd
}

func referralAssignCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign a referral to a staff profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				rf, err := e.UpdateReferral(ctx, engine.ReferralUpdateOptions{
					ID:      args[0],
					Assign:  &assignee,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rf)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "to", "", "staff profile id (empty to unassign)")
	return cmd
}

// --- staff ---

func staffCmd() *cobra.Command {
	st := &cobra.Command{Use: "staff", Short: "Manage staff profiles"}
	st.AddCommand(staffAddCmd())
	st.AddCommand(staffListCmd())
	st.AddCommand(staffUpdateCmd())
	return st
}

func staffAddCmd() *cobra.Command {
	var opts engine.StaffCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a staff profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				if opts.WorkspaceID == "" {
					opts.WorkspaceID = wsID
				}
				p, err := e.CreateStaffProfile(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "profile id (generated when empty)")
	cmd.Flags().StringVar(&opts.FullName, "name", "", "full name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&opts.Role, "role", "THERAPIST", "role (OWNER, THERAPIST, INTERN)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func staffListCmd() *cobra.Command {
	var role, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List staff profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				items, err := e.Repo.ListStaffProfiles(ctx, repo.StaffFilters{
					WorkspaceID: wsID,
					Role:        role,
					Status:      status,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "NAME", "ROLE", "STATUS", "EMAIL")
				for _, p := range items {
					t.AppendRow(table.Row{p.ID, p.FullName, p.Role, p.Status, p.Email})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "filter by role")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

func staffUpdateCmd() *cobra.Command {
	var name, email, phone, role, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a staff profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.StaffUpdateOptions{
				ID:       args[0],
				FullName: name,
				Role:     role,
				Status:   status,
				ActorID:  viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("email") {
				opts.Email = &email
			}
			if cmd.Flags().Changed("phone") {
				opts.Phone = &phone
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				p, err := e.UpdateStaffProfile(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&phone, "phone", "", "phone")
	cmd.Flags().StringVar(&role, "role", "", "role (OWNER, THERAPIST, INTERN)")
	cmd.Flags().StringVar(&status, "status", "", "status (active, inactive)")
	return cmd
}

// --- stub tasks ---

func stubCmd() *cobra.Command {
	st := &cobra.Command{
		Use:   "stub",
		Short: "Manage stub tasks",
		Long:  "Stub tasks cover everything that is not a referral but still needs attention: license renewals, billing cleanup, home obligations.",
	}
	st.AddCommand(stubAddCmd())
	st.AddCommand(stubListCmd())
	st.AddCommand(stubDoneCmd())
	st.AddCommand(stubUpdateCmd())
	return st
}

func stubAddCmd() *cobra.Command {
	var detail, label, due, assignee string
	var opts engine.StubTaskOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a stub task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if cmd.Flags().Changed("detail") {
				opts.Detail = &detail
			}
			if cmd.Flags().Changed("label") {
				opts.Label = &label
			}
			if cmd.Flags().Changed("due") {
				opts.DueDate = &due
			}
			if cmd.Flags().Changed("assignee") {
				opts.Assign = &assignee
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				if opts.WorkspaceID == "" {
					opts.WorkspaceID = wsID
				}
				t, err := e.CreateStubTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (generated when empty)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&detail, "detail", "", "free-form detail")
	cmd.Flags().StringVar(&label, "label", "", "short label")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assigned staff profile id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func stubListCmd() *cobra.Command {
	var status, assignee string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stub tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				items, err := e.Repo.ListStubTasks(ctx, repo.StubTaskFilters{
					WorkspaceID: wsID,
					Status:      status,
					AssigneeID:  assignee,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				t := newTable("ID", "TITLE", "STATUS", "DUE", "ASSIGNEE")
				for _, st := range items {
					due := "-"
					if st.DueDate != nil {
						due = *st.DueDate
					}
					t.AppendRow(table.Row{st.ID, st.Title, st.Status, due, strOrDash(st.AssignedToProfileID)})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (open, done)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "filter by assignee profile id")
	return cmd
}

func stubDoneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a stub task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				t, err := e.UpdateStubTask(ctx, engine.StubTaskOptions{
					ID:      args[0],
					Status:  "done",
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func stubUpdateCmd() *cobra.Command {
	var title, detail, label, due, assignee, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a stub task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.StubTaskOptions{
				ID:      args[0],
				Title:   title,
				Status:  status,
				ActorID: viper.GetString("actor-id"),
			}
			if cmd.Flags().Changed("detail") {
				opts.Detail = &detail
			}
			if cmd.Flags().Changed("label") {
				opts.Label = &label
			}
			if cmd.Flags().Changed("due") {
				opts.DueDate = &due
			}
			if cmd.Flags().Changed("assignee") {
				opts.Assign = &assignee
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				t, err := e.UpdateStubTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&detail, "detail", "", "free-form detail")
	cmd.Flags().StringVar(&label, "label", "", "short label")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assigned staff profile id")
	cmd.Flags().StringVar(&status, "status", "", "status (open, done)")
	return cmd
}

// --- announcements ---

func announceCmd() *cobra.Command {
	an := &cobra.Command{Use: "announce", Short: "Workspace announcements"}
	an.AddCommand(announceAddCmd())
	an.AddCommand(announceListCmd())
	an.AddCommand(announcePinCmd())
	an.AddCommand(announceDeleteCmd())
	return an
}

func announceAddCmd() *cobra.Command {
	var opts engine.AnnouncementCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Post an announcement",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			opts.AuthorID = opts.ActorID
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				if opts.WorkspaceID == "" {
					opts.WorkspaceID = wsID
				}
				a, err := e.CreateAnnouncement(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "announcement title")
	cmd.Flags().StringVar(&opts.Body, "body", "", "announcement body")
	cmd.Flags().BoolVar(&opts.Pinned, "pinned", false, "pin the announcement")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func announceListCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List announcements (pinned first)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				items, err := e.Repo.ListAnnouncements(ctx, wsID, limit)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func announcePinCmd() *cobra.Command {
	var unpin bool
	cmd := &cobra.Command{
		Use:   "pin <id>",
		Short: "Pin an announcement to the top of listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				a, err := e.PinAnnouncement(ctx, args[0], !unpin, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().BoolVar(&unpin, "unpin", false, "clear the pin instead")
	return cmd
}

func announceDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an announcement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				return e.DeleteAnnouncement(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- radar ---

func radarCmd() *cobra.Command {
	rd := &cobra.Command{
		Use:   "radar",
		Short: "Prioritized attention radar",
		Long:  "The radar scores every open referral and stub task for the current viewer and groups them into do_now, waiting and coming_up.",
	}
	rd.AddCommand(radarViewCmd())
	rd.AddCommand(radarSeenCmd())
	rd.AddCommand(radarDeferCmd())
	return rd
}

func radarViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Render the radar for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				snap, err := e.RadarView(ctx, wsID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				fmt.Printf("Radar for %s (%s) at %s\n", snap.ViewerID, snap.Role, snap.GeneratedAt)
				renderBucket("DO NOW", snap.DoNow)
				renderBucket("WAITING", snap.Waiting)
				renderBucket("COMING UP", snap.ComingUp)
				return nil
			})
		},
	}
	return cmd
}

func renderBucket(name string, items []radar.Interpreted) {
	fmt.Printf("\n%s (%d)\n", name, len(items))
	if len(items) == 0 {
		return
	}
	t := newTable("ITEM", "CLASS", "WEIGHT", "DECAY", "DRIFT", "SCORE", "DEADLINE")
	for _, it := range items {
		label := it.Item.ClientName
		if label == "" {
			label = it.Item.Title
		}
		deadline := "-"
		if d := it.Item.Deadline(); d != nil {
			deadline = d.Format("2006-01-02")
		}
		t.AppendRow(table.Row{label, string(it.Class), it.ObjectiveWeight, it.TimeDecay, it.StabilityModifier, it.DisplayWeight, deadline})
	}
	t.Render()
}

func radarSeenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seen <item-id>",
		Short: "Record that you looked at an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				return e.RecordItemView(ctx, wsID, viper.GetString("actor-id"), args[0])
			})
		},
	}
	return cmd
}

func radarDeferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "defer <item-id>",
		Short: "Admit you are putting an item off (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				drift, err := e.DeferItem(ctx, wsID, viper.GetString("actor-id"), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"drift": drift})
			})
		},
	}
	return cmd
}

// --- rbac ---

func rbacCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rbac", Short: "RBAC management"}
	cmd.AddCommand(rbacWhoamiCmd())
	cmd.AddCommand(rbacGrantCmd())
	cmd.AddCommand(rbacRevokeCmd())
	return cmd
}

func rbacWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show current actor roles and permissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				who, err := e.WhoAmI(ctx, wsID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(who)
			})
		},
	}
}

func rbacGrantCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "grant-role",
		Short: "Grant role to actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				return e.GrantRole(ctx, wsID, viper.GetString("actor-id"), target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func rbacRevokeCmd() *cobra.Command {
	var target, role string
	cmd := &cobra.Command{
		Use:   "revoke-role",
		Short: "Revoke role from actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if target == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				return e.RevokeRole(ctx, wsID, viper.GetString("actor-id"), target, role)
			})
		},
	}
	cmd.Flags().StringVar(&target, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

// --- api keys ---

func apikeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	ak.AddCommand(apikeyCreateCmd())
	ak.AddCommand(apikeyListCmd())
	ak.AddCommand(apikeyDeleteCmd())
	return ak
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				key, raw, err := e.CreateAPIKey(ctx, viper.GetString("actor-id"), name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"id":       key.ID,
					"actor_id": key.ActorID,
					"name":     key.Name,
					"key":      raw,
				})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				items, err := e.Repo.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				return e.DeleteAPIKey(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- events ---

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: referral changes, checklist updates, radar deferrals and more.",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, wsID string) error {
				events, err := e.Repo.ListEvents(ctx, wsID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, nil)
			_, cfg, err := app.ResolveWorkspaceAndConfig(cmd.Context(), viper.GetString("workspace-id"), viper.GetString("actor-id"), e)
			if err != nil {
				return err
			}
			e.Config = cfg
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("PRACTICEFLOW_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PRACTICEFLOW_JWT_SECRET is required for bearer auth")
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
			fmt.Printf("Serving Practiceflow API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept unauthenticated X-Actor-Id (dev only)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	e := engine.New(conn, nil)
	wsID, cfg, err := app.ResolveWorkspaceAndConfig(ctx, viper.GetString("workspace-id"), viper.GetString("actor-id"), e)
	if err != nil {
		return err
	}
	e.Config = cfg
	return fn(ctx, e, wsID)
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

func newTable(headers ...any) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row(headers))
	return t
}

func printJSONOrTable(v any) error {
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

func strOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
