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

	"wayfinder/internal/app"
	"wayfinder/internal/config"
	"wayfinder/internal/db"
	"wayfinder/internal/grid"
	"wayfinder/internal/server"
	"wayfinder/internal/track"
)

var rootCmd = &cobra.Command{
	Use:   "wf",
	Short: "Wayfinder CLI",
	Long: `Wayfinder validates, repairs and runs grid pathfinding algorithms.
Candidate sources are checked against a small contract (a constructor,
FindPath and VisitedOrder), broken candidates are handed to an LLM
provider for iterative repair, and accepted algorithms are loaded into
a registry next to the built-in bfs, dijkstra and astar solvers.`,
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
	viper.SetEnvPrefix("WAYFINDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(fixCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(algoCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(providerCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", cfgPath)
			} else {
				fmt.Printf("%s already exists\n", cfgPath)
			}
			ac, err := app.Open(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			defer ac.Close()
			fmt.Printf("workspace ready at %s (db: %s)\n", workspace, db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func validateCmd() *cobra.Command {
	var typeName string
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate candidate source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				report, err := ac.Engine.ValidateSource(ctx, string(source), typeName)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				status := "INVALID"
				if report.Valid {
					status = "VALID"
				}
				fmt.Printf("%s (score %d/100)\n", status, report.Score)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Level", "Category", "Line", "Message"})
				for _, d := range report.All() {
					line := ""
					if d.Line > 0 {
						line = fmt.Sprint(d.Line)
					}
					tw.AppendRow(table.Row{d.Level, d.Category, line, d.Message})
				}
				if len(report.All()) > 0 {
					tw.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "algorithm type name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func fixCmd() *cobra.Command {
	var typeName, provider, out string
	cmd := &cobra.Command{
		Use:   "fix <file>",
		Short: "Repair candidate source with an LLM provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				taskID, err := ac.Engine.SubmitFix(ctx, string(source), typeName, provider)
				if err != nil {
					return err
				}
				snap := waitForTask(ac, taskID)
				if snap.Status != track.StatusCompleted {
					return fmt.Errorf("repair %s: %s", snap.Status, snap.Error)
				}
				if out != "" {
					if result, ok := snap.Result.(map[string]any); ok {
						if src, ok := result["source"].(string); ok {
							if err := os.WriteFile(out, []byte(src), 0o644); err != nil {
								return err
							}
							fmt.Printf("wrote repaired source to %s\n", out)
						}
					}
				}
				return printJSONOrTable(snap)
			})
		},
	}
	cmd.Flags().StringVar(&typeName, "type", "", "algorithm type name")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (defaults to config)")
	cmd.Flags().StringVar(&out, "out", "", "write repaired source to file")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func generateCmd() *cobra.Command {
	var typeName, provider, description string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an algorithm from a description",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				taskID, err := ac.Engine.SubmitGenerate(ctx, description, typeName, provider)
				if err != nil {
					return err
				}
				snap := waitForTask(ac, taskID)
				if snap.Status != track.StatusCompleted {
					return fmt.Errorf("generation %s: %s", snap.Status, snap.Error)
				}
				return printJSONOrTable(snap)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "what the algorithm should do")
	cmd.Flags().StringVar(&typeName, "type", "", "algorithm type name")
	cmd.Flags().StringVar(&provider, "provider", "", "LLM provider (defaults to config)")
	_ = cmd.MarkFlagRequired("description")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func algoCmd() *cobra.Command {
	algo := &cobra.Command{
		Use:   "algo",
		Short: "Manage algorithms",
	}
	algo.AddCommand(algoListCmd())
	algo.AddCommand(algoShowCmd())
	algo.AddCommand(algoLoadCmd())
	algo.AddCommand(algoRemoveCmd())
	return algo
}

func algoListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List algorithms",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				infos := ac.Engine.ListAlgorithms()
				if viper.GetBool("json") {
					return printJSON(infos)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Builtin", "Description"})
				for _, info := range infos {
					tw.AppendRow(table.Row{info.Name, info.Builtin, info.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func algoShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show algorithm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				info, ok := ac.Engine.GetAlgorithm(args[0])
				if !ok {
					return fmt.Errorf("algorithm %s not found", args[0])
				}
				return printJSONOrTable(info)
			})
		},
	}
	return cmd
}

func algoLoadCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load algorithm source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				report, err := ac.Engine.LoadAlgorithm(ctx, name, string(source), description)
				if err != nil {
					if !viper.GetBool("json") && len(report.All()) > 0 {
						for _, d := range report.All() {
							fmt.Printf("  [%s] %s\n", d.Level, d.Message)
						}
					}
					return err
				}
				fmt.Printf("loaded %s (score %d/100)\n", name, report.Score)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "algorithm name (must match the type name)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func algoRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove algorithm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				return ac.Engine.RemoveAlgorithm(ctx, args[0])
			})
		},
	}
	return cmd
}

// runInput mirrors the JSON accepted by the run endpoint.
type runInput struct {
	Width  int        `json:"width"`
	Height int        `json:"height"`
	Grid   [][]int    `json:"grid"`
	Start  grid.Point `json:"start"`
	End    grid.Point `json:"end"`
}

func runCmd() *cobra.Command {
	var mapFile, start, end string
	cmd := &cobra.Command{
		Use:   "run <algorithm>",
		Short: "Run an algorithm over a grid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(mapFile)
			if err != nil {
				return err
			}
			var in runInput
			if err := json.Unmarshal(data, &in); err != nil {
				return fmt.Errorf("parse map file: %w", err)
			}
			if start != "" {
				if in.Start, err = parsePoint(start); err != nil {
					return err
				}
			}
			if end != "" {
				if in.End, err = parsePoint(end); err != nil {
					return err
				}
			}
			if in.Width == 0 && len(in.Grid) > 0 {
				in.Height = len(in.Grid)
				in.Width = len(in.Grid[0])
			}
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				path, visited := ac.Engine.ExecuteAlgorithm(ctx, args[0], in.Width, in.Height, in.Grid, in.Start, in.End)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"path": path, "visited": visited})
				}
				if len(path) == 0 {
					fmt.Println("no path found")
					return nil
				}
				fmt.Printf("path (%d steps, %d cells visited):\n", len(path)-1, len(visited))
				for _, p := range path {
					fmt.Printf("  (%d,%d)\n", p.X, p.Y)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mapFile, "map", "", "JSON map file with grid, start and end")
	cmd.Flags().StringVar(&start, "start", "", "start point as x,y (overrides map file)")
	cmd.Flags().StringVar(&end, "end", "", "end point as x,y (overrides map file)")
	_ = cmd.MarkFlagRequired("map")
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Inspect and control tasks",
	}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	for _, action := range []string{"pause", "resume", "cancel"} {
		task.AddCommand(taskActionCmd(action))
	}
	task.AddCommand(taskRemoveCmd())
	task.AddCommand(taskSweepCmd())
	return task
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				tasks := ac.Engine.Tasks()
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "Progress", "Step"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Type, t.Status, fmt.Sprintf("%.0f%%", t.Progress), t.CurrentStep})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				snap, ok := ac.Engine.Task(args[0])
				if !ok {
					return fmt.Errorf("task %s not found", args[0])
				}
				return printJSONOrTable(snap)
			})
		},
	}
	return cmd
}

func taskActionCmd(action string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   action + " <id>",
		Short: strings.ToUpper(action[:1]) + action[1:] + " a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				var ok bool
				switch action {
				case "pause":
					ok = ac.Engine.PauseTask(ctx, args[0])
				case "resume":
					ok = ac.Engine.ResumeTask(ctx, args[0])
				case "cancel":
					ok = ac.Engine.CancelTask(ctx, args[0])
				}
				if !ok {
					return fmt.Errorf("task %s cannot %s in its current state", args[0], action)
				}
				snap, _ := ac.Engine.Task(args[0])
				return printJSONOrTable(snap)
			})
		},
	}
	return cmd
}

func taskRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a finished task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				if !ac.Engine.RemoveTask(ctx, args[0]) {
					return fmt.Errorf("task %s not found or still running", args[0])
				}
				return nil
			})
		},
	}
	return cmd
}

func taskSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove old finished tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				n := ac.Engine.SweepTasks(ctx)
				fmt.Printf("removed %d tasks\n", n)
				return nil
			})
		},
	}
	return cmd
}

func providerCmd() *cobra.Command {
	prov := &cobra.Command{
		Use:   "provider",
		Short: "Manage LLM providers",
	}
	prov.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				providers := ac.Engine.Providers()
				if viper.GetBool("json") {
					return printJSON(providers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Name", "Model", "Base URL", "Default"})
				for _, p := range providers {
					tw.AppendRow(table.Row{p.Name, p.Model, p.BaseURL, p.Name == ac.Config.Oracle.Default})
				}
				tw.Render()
				return nil
			})
		},
	})
	prov.AddCommand(&cobra.Command{
		Use:   "check <name>",
		Short: "Check provider connectivity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				if err := ac.Engine.CheckProvider(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("%s OK\n", args[0])
				return nil
			})
		},
	})
	return prov
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
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				events, err := ac.Engine.EventLog(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, ac *app.Context) error {
				if addr == "" {
					addr = ac.Config.Server.Addr
				}
				handler, err := server.New(server.Config{
					Engine:   ac.Engine,
					BasePath: basePath,
					Auth:     server.AuthConfig{APIKey: ac.Config.Server.APIKey},
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
					ac.Engine.Wait()
				}()
				fmt.Printf("Serving Wayfinder API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	ac, err := app.Open(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer ac.Close()
	return fn(ctx, ac)
}

// waitForTask prints progress lines until the task reaches a terminal
// state, then returns the final snapshot.
func waitForTask(ac *app.Context, taskID string) track.Snapshot {
	if !viper.GetBool("json") {
		unsubscribe := ac.Engine.Tracker.Subscribe(func(snap track.Snapshot) {
			if snap.ID != taskID || snap.CurrentStep == "" {
				return
			}
			fmt.Printf("[%3.0f%%] %s\n", snap.Progress, snap.CurrentStep)
		})
		defer unsubscribe()
	}
	ac.Engine.Wait()
	snap, _ := ac.Engine.Task(taskID)
	return snap
}

func parsePoint(s string) (grid.Point, error) {
	var p grid.Point
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d,%d", &p.X, &p.Y); err != nil {
		return grid.Point{}, fmt.Errorf("invalid point %q, expected x,y", s)
	}
	return p, nil
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
