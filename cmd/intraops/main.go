package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"intraops/internal/bridge"
	"intraops/internal/comments"
	"intraops/internal/config"
	"intraops/internal/db"
	"intraops/internal/domain"
	"intraops/internal/engine"
	"intraops/internal/migrate"
	"intraops/internal/notify"
	"intraops/internal/repo"
	"intraops/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "intraops",
	Short: "IntraOps task CLI",
	Long: `IntraOps tracks operational work as tasks with a status workflow,
an approval sub-workflow, a kanban board, checklists, comments, and a full
audit trail. Trashed tasks can be restored as long as their references still
resolve.`,
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
	viper.SetEnvPrefix("INTRAOPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Int64("actor-id", 1, "acting person id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(trashCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(personCmd())
	rootCmd.AddCommand(clientCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(serveCmd())
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskBoardCmd())
	task.AddCommand(taskTrashCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var in engine.CreateTaskInput
	var due, start string
	var responsible int64
	var leader bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if due != "" {
				in.DueDate = &due
			}
			if start != "" {
				in.StartDate = &start
			}
			if responsible != 0 {
				in.Responsibles = []engine.ResponsibleInput{{PersonID: responsible, IsLeader: leader}}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.Create(ctx, viper.GetInt64("actor-id"), in)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().Int64Var(&in.ClientID, "client", 0, "client id")
	cmd.Flags().StringVar(&in.Title, "title", "", "title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.StatusCode, "status", "", "status code (default pendiente)")
	cmd.Flags().IntVar(&in.Impact, "impact", 0, "impact level 1-3")
	cmd.Flags().IntVar(&in.Urgency, "urgency", 0, "urgency level 1-3")
	cmd.Flags().BoolVar(&in.ManualBoost, "boost", false, "manual boost")
	cmd.Flags().BoolVar(&in.RequiresApproval, "requires-approval", false, "requires approval")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&responsible, "responsible", 0, "initial responsible person id")
	cmd.Flags().BoolVar(&leader, "leader", false, "initial responsible is leader")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var filters repo.TaskFilters
	var mine bool
	var sortBy string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks by priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				if mine {
					filters.MineFor = viper.GetInt64("actor-id")
				}
				tasks, err := e.List(ctx, filters, sortBy)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				printTaskTable(tasks)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&filters.ClientID, "client", 0, "filter by client id")
	cmd.Flags().Int64Var(&filters.StatusID, "status", 0, "filter by status id")
	cmd.Flags().BoolVar(&mine, "mine", false, "only my tasks")
	cmd.Flags().BoolVar(&filters.IncludeArchived, "archived", false, "include archived")
	cmd.Flags().IntVar(&filters.Limit, "limit", 0, "limit")
	cmd.Flags().StringVar(&sortBy, "sort", "priority", "ordering: priority, due_date, created_at")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with members, checklist, and relations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.Get(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskStatusCmd() *cobra.Command {
	var statusCode, reason string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Change task status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				status, err := e.Repo.GetStatusByCode(ctx, statusCode)
				if err != nil {
					return fmt.Errorf("status %q: %w", statusCode, err)
				}
				t, err := e.SetStatus(ctx, viper.GetInt64("actor-id"), id, status.ID, reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&statusCode, "to", "", "target status code")
	cmd.Flags().StringVar(&reason, "reason", "", "reason (required when cancelling)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func taskBoardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the kanban board",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				board, err := e.Board(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(board)
				}
				for _, col := range board {
					fmt.Printf("%s (%s)\n", col.Status.Name, col.Status.KanbanColumn)
					for _, t := range col.Tasks {
						fmt.Printf("  #%d %s [boost %d]\n", t.ID, t.Title, t.Boost)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func taskTrashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash <id>",
		Short: "Move a task to the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.MoveToTrash(ctx, viper.GetInt64("actor-id"), id)
			})
		},
	}
	return cmd
}

func trashCmd() *cobra.Command {
	trash := &cobra.Command{Use: "trash", Short: "Inspect and restore trashed tasks"}
	trash.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List trashed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				tasks, err := e.ListTrash(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				printTaskTable(tasks)
				return nil
			})
		},
	})
	trash.AddCommand(&cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a trashed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.Restore(ctx, viper.GetInt64("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	})
	return trash
}

func historyCmd() *cobra.Command {
	var n int
	var kind string
	cmd := &cobra.Command{
		Use:   "history <task-id>",
		Short: "Show the audit trail of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				entries, err := e.HistoryOf(ctx, repo.HistoryFilters{TaskID: id, Kind: kind, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				w := table.NewWriter()
				w.SetOutputMirror(os.Stdout)
				w.AppendHeader(table.Row{"TS", "KIND", "ACTOR", "PAYLOAD"})
				for _, h := range entries {
					w.AppendRow(table.Row{h.TS, h.Kind, h.ActorID, h.Payload})
				}
				w.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind")
	return cmd
}

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{Use: "catalog", Short: "Inspect catalogs"}
	cat.AddCommand(&cobra.Command{
		Use:   "statuses",
		Short: "List workflow statuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListStatuses(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	cat.AddCommand(&cobra.Command{
		Use:   "relations",
		Short: "List relation types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRelationTypes(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	cat.AddCommand(&cobra.Command{
		Use:   "tags",
		Short: "List tags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListTags(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	})
	return cat
}

func personCmd() *cobra.Command {
	person := &cobra.Command{Use: "person", Short: "Manage referenced people"}
	person.AddCommand(personAddCmd())
	return person
}

func personAddCmd() *cobra.Command {
	var name, routing string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a person",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := r.EnsurePerson(ctx, domain.Person{Name: name, RoutingID: routing})
				if err != nil {
					return err
				}
				fmt.Printf("person %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "person name")
	cmd.Flags().StringVar(&routing, "routing-id", "", "notification routing id")
	return cmd
}

func clientCmd() *cobra.Command {
	client := &cobra.Command{Use: "client", Short: "Manage clients"}
	client.AddCommand(clientAddCmd(), clientRmCmd(), clientMilestoneCmd())
	return client
}

func clientAddCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a client",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := r.EnsureClient(ctx, domain.Client{Name: name})
				if err != nil {
					return err
				}
				fmt.Printf("client %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "client name")
	return cmd
}

func clientRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <client-id>",
		Short: "Remove a client with no tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.DeleteClient(ctx, id); err != nil {
					return fmt.Errorf("remove client %d: %w", id, err)
				}
				fmt.Printf("client %d removed\n", id)
				return nil
			})
		},
	}
}

func clientMilestoneCmd() *cobra.Command {
	var clientID int64
	cmd := &cobra.Command{
		Use:   "milestone <name>",
		Short: "Register a milestone for a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clientID == 0 {
				return fmt.Errorf("--client required")
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := r.EnsureMilestone(ctx, clientID, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("milestone %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&clientID, "client", 0, "client id")
	return cmd
}

func commentCmd() *cobra.Command {
	var replyTo int64
	cmd := &cobra.Command{
		Use:   "comment <task-id> <content>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withDeps(cmd.Context(), func(ctx context.Context, conn *sql.DB, cfg *config.Config, sender *notify.Sender) error {
				m := comments.NewManager(conn, cfg, sender)
				var reply *int64
				if replyTo != 0 {
					reply = &replyTo
				}
				thread, err := m.Post(ctx, viper.GetInt64("actor-id"), id, args[1], reply, nil, nil)
				if err != nil {
					return err
				}
				sender.Wait()
				return printJSONOrTable(thread)
			})
		},
	}
	cmd.Flags().Int64Var(&replyTo, "reply-to", 0, "comment id to reply to")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd.Context(), func(ctx context.Context, conn *sql.DB, cfg *config.Config, sender *notify.Sender) error {
				secret := os.Getenv("INTRAOPS_JWT_SECRET")
				if secret == "" {
					return fmt.Errorf("INTRAOPS_JWT_SECRET is required for bearer auth")
				}
				e := engine.New(conn, cfg, sender)
				m := comments.NewManager(conn, cfg, sender)
				handler, err := server.New(server.Config{
					Engine:   e,
					Comments: m,
					Bridge:   bridge.Disk{Root: cfg.Storage.Root},
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
					sender.Wait()
				}()
				fmt.Printf("Serving IntraOps API on http://%s%s\n", addr, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withDeps(ctx context.Context, fn func(context.Context, *sql.DB, *config.Config, *notify.Sender) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	sender := &notify.Sender{
		Dispatcher: notify.LogDispatcher{Log: logrus.StandardLogger()},
		Timeout:    time.Duration(cfg.Notify.TimeoutSeconds) * time.Second,
	}
	return fn(ctx, conn, cfg, sender)
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	return withDeps(ctx, func(ctx context.Context, conn *sql.DB, cfg *config.Config, sender *notify.Sender) error {
		e := engine.New(conn, cfg, sender)
		err := fn(ctx, e)
		sender.Wait()
		return err
	})
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

func printTaskTable(tasks []domain.Task) {
	w := table.NewWriter()
	w.SetOutputMirror(os.Stdout)
	w.AppendHeader(table.Row{"ID", "TITLE", "COLUMN", "BOOST", "DUE", "%"})
	for _, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = *t.DueDate
		}
		w.AppendRow(table.Row{t.ID, t.Title, t.KanbanColumn, t.Boost, due, t.Completion})
	}
	w.Render()
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

func parseID(s string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(s, "%d", &id); err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
