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

	"github.com/Aamm5845/residentone-workflow-sub002/internal/app"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/config"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/db"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/domain"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/migrate"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/repo"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/server"
	"github.com/Aamm5845/residentone-workflow-sub002/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "residentone",
	Short: "ResidentOne CLI",
	Long: `ResidentOne runs an interior design studio's project pipeline.
Core concepts:
- Workspace: your .residentone directory holding the database; the studio config lives in the DB and is imported explicitly.
- Clients and projects: a client owns projects, a project owns rooms.
- Stages: every room is seeded with the studio's stage catalog (design, three_d, drawings, ffe, client_approval); statuses go not_started -> in_progress -> completed, with not_applicable as an exit.
- Versions: numbered deliverable passes (v1, v2, ...) on rendering stages, plus project-level floorplans; they flow in_progress -> completed -> pushed_to_client -> client_approved / revision_requested.
- Assets: files on a version; locked once the version is pushed to the client.
- Approvals: pushing creates a tokenized approval the client decides without logging in.
- Notes: comments with @mentions resolved against the team roster.
- Activity log: append-only diary per entity, view with 'residentone activity tail'.`,
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
	viper.SetEnvPrefix("RESIDENTONE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting team member id")
	rootCmd.PersistentFlags().String("studio", "", "studio id (overrides single-studio default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("studio", rootCmd.PersistentFlags().Lookup("studio"))
}

func registerCommands() {
	rootCmd.AddCommand(studioCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(roomCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(assetCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(approvalCmd())
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(timeCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- studio ---

func studioCmd() *cobra.Command {
	studio := &cobra.Command{Use: "studio", Short: "Manage studio config"}
	studio.AddCommand(studioConfigShowCmd())
	studio.AddCommand(studioConfigImportCmd())
	studio.AddCommand(studioConfigInitCmd())
	return studio
}

func studioConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show studio config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func studioConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import studio config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			studioID := cfg.Studio.ID
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if studioID == "" {
					resolved, _, err := app.ResolveStudioConfig(ctx, viper.GetString("studio"), r)
					if err != nil {
						return err
					}
					studioID = resolved
				}
				if err := r.UpsertStudioConfig(ctx, studioID, cfg); err != nil {
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

func studioConfigInitCmd() *cobra.Command {
	var studioID string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default residentone.yml to the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if studioID == "" {
				studioID = app.DefaultStudioID
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(studioID)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&studioID, "studio-id", "", "studio id")
	return cmd
}

// --- clients ---

func clientCmd() *cobra.Command {
	client := &cobra.Command{Use: "client", Short: "Manage clients"}
	client.AddCommand(clientCreateCmd())
	client.AddCommand(clientListCmd())
	client.AddCommand(clientShowCmd())
	return client
}

func clientCreateCmd() *cobra.Command {
	var name, email, phone string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				c, err := e.CreateClient(ctx, name, email, phone)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "client name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&phone, "phone", "", "phone")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func clientListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Repo.ListClients(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Phone"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Email, c.Phone})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func clientShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				c, err := e.Repo.GetClient(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

// --- projects ---

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectStatusCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts workflow.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ClientID, "client", "", "client id")
	cmd.Flags().StringVar(&opts.Name, "name", "", "project name")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Repo.ListProjects(ctx, clientID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Client", "Status"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.ClientID, p.Status})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client filter")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.Repo.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var status, description string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				var descPtr *string
				if cmd.Flags().Changed("description") {
					descPtr = &description
				}
				if err := e.UpdateProject(ctx, id, status, descPtr, viper.GetString("actor-id")); err != nil {
					return err
				}
				p, err := e.Repo.GetProject(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status (active, on_hold, archived)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func projectStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show project status with stage counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				p, err := e.Repo.GetProject(ctx, id)
				if err != nil {
					return err
				}
				counts, err := e.Repo.CountStagesByStatus(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"project": p, "stage_counts": counts})
				}
				fmt.Printf("Project: %s (%s)\n", p.Name, p.Status)
				fmt.Println("Stages:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	return cmd
}

// --- rooms ---

func roomCmd() *cobra.Command {
	room := &cobra.Command{Use: "room", Short: "Manage rooms"}
	room.AddCommand(roomCreateCmd())
	room.AddCommand(roomListCmd())
	room.AddCommand(roomStagesCmd())
	return room
}

func roomCreateCmd() *cobra.Command {
	var projectID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create room (seeds the stage catalog)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				room, err := e.CreateRoom(ctx, projectID, name, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(room)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&name, "name", "", "room name")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func roomListCmd() *cobra.Command {
	var projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rooms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Repo.ListRooms(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func roomStagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stages <room-id>",
		Short: "List a room's stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				stages, err := e.Repo.ListStages(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stages)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "Assignee", "Due"})
				for _, s := range stages {
					tw.AppendRow(table.Row{s.ID, s.Type, s.Status, deref(s.AssigneeID), deref(s.DueDate)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

// --- stages ---

func stageCmd() *cobra.Command {
	stage := &cobra.Command{
		Use:   "stage",
		Short: "Manage stages",
		Long:  "Stages are the phases of a room. They flow not_started -> in_progress -> completed; not_applicable exits a phase the room does not need.",
	}
	stage.AddCommand(stageShowCmd())
	stage.AddCommand(stageStatusCmd("start", "Start stage", workflow.Engine.StartStage))
	stage.AddCommand(stageStatusCmd("complete", "Complete stage", workflow.Engine.CompleteStage))
	stage.AddCommand(stageStatusCmd("reopen", "Reopen completed stage", workflow.Engine.ReopenStage))
	stage.AddCommand(stageStatusCmd("not-applicable", "Mark stage not applicable", workflow.Engine.SetStageNotApplicable))
	stage.AddCommand(stageAssignCmd())
	stage.AddCommand(stageDueCmd())
	return stage
}

func stageShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				s, err := e.Repo.GetStage(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func stageStatusCmd(use, short string, fn func(workflow.Engine, context.Context, string, string) (domain.Stage, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				s, err := fn(e, ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func stageAssignCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign stage (empty --to unassigns)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				s, err := e.AssignStage(ctx, args[0], assignee, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "to", "", "team member id")
	return cmd
}

func stageDueCmd() *cobra.Command {
	var due string
	cmd := &cobra.Command{
		Use:   "due <id>",
		Short: "Set stage due date (empty --date clears)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				s, err := e.SetStageDue(ctx, args[0], due, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&due, "date", "", "due date (YYYY-MM-DD)")
	return cmd
}

// --- versions ---

func versionCmd() *cobra.Command {
	version := &cobra.Command{
		Use:   "version",
		Short: "Manage deliverable versions",
		Long:  "Versions are numbered deliverable passes. Rendering versions live on stages, floorplans on the project; both flow in_progress -> completed -> pushed_to_client -> client_approved / revision_requested.",
	}
	version.AddCommand(versionCreateCmd())
	version.AddCommand(versionListCmd())
	version.AddCommand(versionShowCmd())
	version.AddCommand(versionCompleteCmd())
	version.AddCommand(versionReopenCmd())
	version.AddCommand(versionPushCmd())
	version.AddCommand(versionDeleteCmd())
	return version
}

func versionCreateCmd() *cobra.Command {
	var stageID, projectID, name, sourceFile string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create version (--stage for rendering, --project for floorplan)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := workflow.VersionCreateOptions{
				Name:       name,
				SourceFile: sourceFile,
				ActorID:    viper.GetString("actor-id"),
			}
			switch {
			case stageID != "" && projectID != "":
				return fmt.Errorf("--stage and --project are mutually exclusive")
			case stageID != "":
				opts.OwnerKind = "stage"
				opts.OwnerID = stageID
			case projectID != "":
				opts.OwnerKind = "project"
				opts.OwnerID = projectID
			default:
				return fmt.Errorf("--stage or --project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				v, err := e.CreateVersion(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().StringVar(&stageID, "stage", "", "owning stage id")
	cmd.Flags().StringVar(&projectID, "project", "", "owning project id (floorplan)")
	cmd.Flags().StringVar(&name, "name", "", "version name")
	cmd.Flags().StringVar(&sourceFile, "source-file", "", "source file reference")
	return cmd
}

func versionListCmd() *cobra.Command {
	var stageID, projectID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List versions for a stage or project",
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerKind, ownerID := "stage", stageID
			if projectID != "" {
				ownerKind, ownerID = "project", projectID
			}
			if ownerID == "" {
				return fmt.Errorf("--stage or --project required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Repo.ListVersions(ctx, ownerKind, ownerID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Label", "Status", "Current", "Rev"})
				for _, v := range items {
					tw.AppendRow(table.Row{v.ID, v.Label, v.Status, v.IsCurrent, v.Rev})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stageID, "stage", "", "stage id")
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	return cmd
}

func versionShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				v, err := e.Repo.GetVersion(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	return cmd
}

func versionCompleteCmd() *cobra.Command {
	var rev int64
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark version completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				v, err := e.CompleteVersion(ctx, args[0], viper.GetString("actor-id"), rev)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().Int64Var(&rev, "rev", 0, "expected revision (0 skips the check)")
	return cmd
}

func versionReopenCmd() *cobra.Command {
	var rev int64
	cmd := &cobra.Command{
		Use:   "reopen <id>",
		Short: "Reopen version for more work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				v, err := e.ReopenVersion(ctx, args[0], viper.GetString("actor-id"), rev)
				if err != nil {
					return err
				}
				return printJSONOrTable(v)
			})
		},
	}
	cmd.Flags().Int64Var(&rev, "rev", 0, "expected revision (0 skips the check)")
	return cmd
}

func versionPushCmd() *cobra.Command {
	var assetIDs []string
	var rev int64
	cmd := &cobra.Command{
		Use:   "push <id>",
		Short: "Push version to client (creates a tokenized approval)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				v, ap, err := e.PushVersionToClient(ctx, args[0], assetIDs, viper.GetString("actor-id"), rev)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"version": v, "approval": ap})
				}
				fmt.Printf("Pushed %s (%s). Approval token: %s\n", v.Label, v.ID, ap.Token)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&assetIDs, "asset", []string{}, "asset id to include (repeatable)")
	cmd.Flags().Int64Var(&rev, "rev", 0, "expected revision (0 skips the check)")
	return cmd
}

func versionDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete version (its label is never reused)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.DeleteVersion(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- assets ---

func assetCmd() *cobra.Command {
	asset := &cobra.Command{Use: "asset", Short: "Manage version assets"}
	asset.AddCommand(assetAddCmd())
	asset.AddCommand(assetListCmd())
	asset.AddCommand(assetUpdateCmd())
	asset.AddCommand(assetDeleteCmd())
	return asset
}

func assetAddCmd() *cobra.Command {
	var opts workflow.AssetAddOptions
	cmd := &cobra.Command{
		Use:   "add <version-id>",
		Short: "Attach asset to a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.VersionID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				a, err := e.AddAsset(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "asset title")
	cmd.Flags().StringVar(&opts.URL, "url", "", "asset URL")
	cmd.Flags().StringVar(&opts.ContentType, "content-type", "", "MIME type")
	cmd.Flags().Int64Var(&opts.SizeBytes, "size", 0, "size in bytes")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().BoolVar(&opts.IncludeInEmail, "include-in-email", false, "include in client email")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func assetListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <version-id>",
		Short: "List version assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Repo.ListAssets(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "URL", "Email"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Title, a.URL, a.IncludeInEmail})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func assetUpdateCmd() *cobra.Command {
	var title, description string
	var includeInEmail bool
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update asset metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch workflow.AssetPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("include-in-email") {
				patch.IncludeInEmail = &includeInEmail
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				a, err := e.UpdateAsset(ctx, args[0], patch, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "asset title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().BoolVar(&includeInEmail, "include-in-email", false, "include in client email")
	return cmd
}

func assetDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.DeleteAsset(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- notes ---

func noteCmd() *cobra.Command {
	note := &cobra.Command{
		Use:   "note",
		Short: "Manage notes and chat",
		Long:  "Notes attach to a version, a stage, or the project chat. @mentions in the body are resolved against the team roster.",
	}
	note.AddCommand(noteAddCmd())
	note.AddCommand(noteListCmd())
	note.AddCommand(noteEditCmd())
	note.AddCommand(noteDeleteCmd())
	return note
}

func noteAddCmd() *cobra.Command {
	var opts workflow.NoteAddOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add note",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.AuthorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				n, err := e.AddNote(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ScopeKind, "scope", "version", "scope kind (version, stage, chat)")
	cmd.Flags().StringVar(&opts.ScopeID, "scope-id", "", "scope id (version, stage, or project)")
	cmd.Flags().StringVar(&opts.Body, "body", "", "note body")
	_ = cmd.MarkFlagRequired("scope-id")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func noteListCmd() *cobra.Command {
	var scopeKind, scopeID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes in a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Repo.ListNotes(ctx, scopeKind, scopeID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&scopeKind, "scope", "version", "scope kind (version, stage, chat)")
	cmd.Flags().StringVar(&scopeID, "scope-id", "", "scope id")
	_ = cmd.MarkFlagRequired("scope-id")
	return cmd
}

func noteEditCmd() *cobra.Command {
	var body string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit note (re-resolves mentions)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				n, err := e.EditNote(ctx, args[0], body, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "new body")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func noteDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				return e.DeleteNote(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

// --- approvals ---

func approvalCmd() *cobra.Command {
	ap := &cobra.Command{Use: "approval", Short: "Inspect and decide client approvals"}
	ap.AddCommand(approvalShowCmd())
	ap.AddCommand(approvalDecideCmd())
	return ap
}

func approvalShowCmd() *cobra.Command {
	var versionID, token string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show approval by version or token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				switch {
				case token != "":
					ap, err := e.Repo.GetApprovalByToken(ctx, token)
					if err != nil {
						return err
					}
					return printJSONOrTable(ap)
				case versionID != "":
					ap, err := e.Repo.GetApprovalByVersion(ctx, versionID)
					if err != nil {
						return err
					}
					return printJSONOrTable(ap)
				default:
					return fmt.Errorf("--version or --token required")
				}
			})
		},
	}
	cmd.Flags().StringVar(&versionID, "version", "", "version id")
	cmd.Flags().StringVar(&token, "token", "", "approval token")
	return cmd
}

func approvalDecideCmd() *cobra.Command {
	var decision, message string
	cmd := &cobra.Command{
		Use:   "decide <token>",
		Short: "Record client decision on behalf of the client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				v, ap, err := e.RecordClientDecision(ctx, args[0], decision, message)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"version": v, "approval": ap})
				}
				fmt.Printf("Version %s is now %s\n", v.Label, v.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "approved or revision_requested")
	cmd.Flags().StringVar(&message, "message", "", "revision message (required for revision_requested)")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

// --- team ---

func teamCmd() *cobra.Command {
	team := &cobra.Command{Use: "team", Short: "Manage team members and API keys"}
	team.AddCommand(teamAddCmd())
	team.AddCommand(teamListCmd())
	team.AddCommand(teamKeyCmd())
	return team
}

func teamAddCmd() *cobra.Command {
	var name, email, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add team member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				m, err := e.CreateTeamMember(ctx, name, email, role)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&role, "role", "designer", "role")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func teamListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List team members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				items, err := e.Repo.ListTeamMembers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Email, m.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func teamKeyCmd() *cobra.Command {
	var memberID, name string
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Mint API key (raw key is shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				k, raw, err := e.MintAPIKey(ctx, memberID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": k.ID, "member_id": k.MemberID, "name": k.Name, "key": raw})
				}
				fmt.Printf("API key %s for %s: %s\n", k.ID, k.MemberID, raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&memberID, "member", "", "team member id")
	cmd.Flags().StringVar(&name, "name", "", "key name")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

// --- time ---

func timeCmd() *cobra.Command {
	tc := &cobra.Command{Use: "time", Short: "Track time on stages"}
	tc.AddCommand(timeLogCmd())
	tc.AddCommand(timeListCmd())
	return tc
}

func timeLogCmd() *cobra.Command {
	var opts workflow.TimeLogOptions
	cmd := &cobra.Command{
		Use:   "log <stage-id>",
		Short: "Log minutes against a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.StageID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			if opts.MemberID == "" {
				opts.MemberID = opts.ActorID
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				entry, err := e.LogTime(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}
	cmd.Flags().IntVar(&opts.Minutes, "minutes", 0, "minutes worked")
	cmd.Flags().StringVar(&opts.MemberID, "member", "", "team member id (defaults to actor)")
	cmd.Flags().StringVar(&opts.EntryDate, "date", "", "entry date (YYYY-MM-DD, defaults to today)")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note")
	_ = cmd.MarkFlagRequired("minutes")
	return cmd
}

func timeListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <stage-id>",
		Short: "List time entries for a stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				entries, err := e.Repo.ListTimeEntries(ctx, args[0])
				if err != nil {
					return err
				}
				total, err := e.Repo.SumStageMinutes(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"entries": entries, "total_minutes": total})
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Member", "Date", "Minutes", "Note"})
				for _, en := range entries {
					tw.AppendRow(table.Row{en.ID, en.MemberID, en.EntryDate, en.Minutes, en.Note})
				}
				tw.Render()
				fmt.Printf("Total: %d minutes\n", total)
				return nil
			})
		},
	}
	return cmd
}

// --- activity ---

func activityCmd() *cobra.Command {
	ac := &cobra.Command{Use: "activity", Short: "Inspect the activity log"}
	ac.AddCommand(activityTailCmd())
	return ac
}

func activityTailCmd() *cobra.Command {
	var n int
	var entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail an entity's activity feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e workflow.Engine) error {
				entries, err := e.Repo.ListActivity(ctx, entityKind, entityID, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(entries)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind (project, room, stage, version)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	_ = cmd.MarkFlagRequired("entity-kind")
	_ = cmd.MarkFlagRequired("entity-id")
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
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
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveStudioConfig(cmd.Context(), viper.GetString("studio"), r)
			if err != nil {
				return err
			}
			e := workflow.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("RESIDENTONE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("RESIDENTONE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			dispatcher := server.NewDispatcher(e)
			dispatcher.Start(cmd.Context())
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving ResidentOne API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, workflow.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveStudioConfig(ctx, viper.GetString("studio"), r)
	if err != nil {
		return err
	}
	e := workflow.New(conn, cfg)
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
