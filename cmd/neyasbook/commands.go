package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/neyasbook/neyasbook/internal/api"
	"github.com/neyasbook/neyasbook/internal/chat"
	"github.com/neyasbook/neyasbook/internal/config"
	"github.com/neyasbook/neyasbook/internal/manuscript"
	"github.com/neyasbook/neyasbook/internal/sweep"
)

const remoteSweepTimeout = 10 * time.Minute

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the server is running and what it serves",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showStatus(cmd.Context(), client)
	},
}

func showStatus(ctx context.Context, client *apiClient) error {
	resp, err := client.get(ctx, "/health", "")
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}
	var health map[string]string
	if err := decodeJSON(resp, &health); err != nil {
		printStatus("Server", "error (%v)", err)
		return nil
	}
	printStatus("Server", "running at %s", client.baseURL)

	resp, err = client.get(ctx, "/projects", "")
	if err != nil {
		return err
	}
	var projects []manuscript.Project
	if err := decodeJSON(resp, &projects); err != nil {
		printWarning("could not list projects: %v", err)
		return nil
	}
	printStatus("Projects", "%d", len(projects))
	return nil
}

// --- sweep ---

var sweepCmd = &cobra.Command{
	Use:   "sweep <project>",
	Short: "Extract entities from changed chapters and merge them into the lore",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		if remote, _ := cmd.Flags().GetBool("remote"); remote {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			printStep("Sweeping %s on %s", args[0], client.baseURL)
			res, err := remoteSweep(ctx, client, args[0])
			return reportSweep(args[0], res, err)
		}

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		printStep("Sweeping %s", args[0])
		res, err := a.sweeper.Sweep(ctx, args[0])
		return reportSweep(args[0], res, err)
	},
}

// remoteSweep asks a running server to sweep the project. The server's
// 404 for a missing manifest comes back as manuscript.ErrNotFound.
func remoteSweep(ctx context.Context, client *apiClient, project string) (sweep.Result, error) {
	// A sweep runs one model call per changed chapter; the default client
	// timeout is too short for that.
	c := *client
	var hc http.Client
	if client.httpClient != nil {
		hc = *client.httpClient
	}
	hc.Timeout = remoteSweepTimeout
	c.httpClient = &hc

	resp, err := c.post(ctx, "/sweep", project, nil)
	if err != nil {
		return sweep.Result{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return sweep.Result{}, manuscript.ErrNotFound
	}
	var out struct {
		Result sweep.Result `json:"result"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return sweep.Result{}, err
	}
	return out.Result, nil
}

func reportSweep(project string, res sweep.Result, err error) error {
	if errors.Is(err, manuscript.ErrNotFound) {
		return fmt.Errorf("project %q has no manifest", project)
	}
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		printWarning("%s", res.Message())
		return nil
	}
	printSuccess("%s", res.Message())
	return nil
}

// --- projects ---

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage projects",
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		projects, err := a.repo.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			printWarning("no projects")
			return nil
		}
		for _, p := range projects {
			fmt.Fprintf(dataOut, "  %s  %s\n", colorize(colorBold, p.ID), p.Title)
		}
		return nil
	},
}

var projectsCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a project with a default manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		desc, _ := cmd.Flags().GetString("description")

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.repo.CreateProject(cmd.Context(), manuscript.Project{ID: args[0], Title: title, Description: desc})
		if errors.Is(err, manuscript.ErrExists) {
			return fmt.Errorf("project %q already exists", args[0])
		}
		if err != nil {
			return err
		}
		printSuccess("Created project %s", p.ID)
		return nil
	},
}

var projectsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project and everything stored under it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("deleting %q is irreversible; pass --confirm", args[0])
		}

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.repo.DeleteProject(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, manuscript.ErrNotFound) {
				return fmt.Errorf("project %q not found", args[0])
			}
			return err
		}
		printSuccess("Deleted project %s", args[0])
		return nil
	},
}

func init() {
	sweepCmd.Flags().Bool("remote", false, "ask the running server to sweep instead of sweeping in-process")

	projectsCreateCmd.Flags().String("title", "", "project title")
	projectsCreateCmd.Flags().String("description", "", "project description")
	projectsDeleteCmd.Flags().Bool("confirm", false, "confirm deletion")

	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsCreateCmd)
	projectsCmd.AddCommand(projectsDeleteCmd)
}

// --- entities ---

var entitiesCmd = &cobra.Command{
	Use:   "entities <project> [entity-id]",
	Short: "List a project's entities, or print one profile as JSON",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 2 {
			p, err := a.repo.LoadProfile(cmd.Context(), args[0], args[1])
			if errors.Is(err, manuscript.ErrNotFound) {
				return fmt.Errorf("entity %q not found", args[1])
			}
			if err != nil {
				return err
			}
			return printJSON(p)
		}

		idx, err := a.repo.LoadIndex(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(idx) == 0 {
			printWarning("no entities; run `neyasbook sweep %s` first", args[0])
			return nil
		}
		for _, e := range idx {
			fmt.Fprintf(dataOut, "  %-28s %-10s %s\n", colorize(colorBold, e.ID), e.Type, e.Name)
		}
		return nil
	},
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat <project> <message>",
	Short: "Send a message to a persona and record the exchange in the project's chat history",
	Long: `Send a message to a persona and record the exchange in the project's chat history.

Examples:
  neyasbook chat neyas "Is the opening too slow?" --chapter 1
  neyasbook chat neyas "What do you want most?" --persona dr-elias-voss --chapter 3
  neyasbook chat neyas --reset`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reset, _ := cmd.Flags().GetBool("reset")
		if !reset && len(args) < 2 {
			return fmt.Errorf("a message is required")
		}
		personaID, _ := cmd.Flags().GetString("persona")
		chapterID, _ := cmd.Flags().GetString("chapter")
		refs, _ := cmd.Flags().GetStringSlice("ref")

		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, !reset)
		if err != nil {
			return err
		}
		defer a.Close()

		if reset {
			t, err := a.repo.LoadTranscript(ctx, args[0])
			if err != nil {
				return err
			}
			t.ResetContext()
			if err := a.repo.SaveTranscript(ctx, args[0], t); err != nil {
				return err
			}
			printSuccess("Chat context reset")
			return nil
		}

		resp, err := a.chat.Converse(ctx, args[0], chat.ConverseRequest{
			Persona:       personaID,
			ChapterID:     chapterID,
			Message:       args[1],
			ReferencedIDs: refs,
		})
		if err != nil {
			return err
		}
		printTurn(resp)
		return nil
	},
}

func printTurn(resp *chat.TurnResponse) {
	if resp.Content != "" {
		fmt.Fprintln(dataOut, resp.Content)
	}
	for _, s := range resp.Suggestions {
		fmt.Fprintln(statusOut)
		printStep("Suggested %s", s.Kind())
		if s.Original != "" && s.Original != manuscript.ReformatMarker {
			printStatus("Original", "%s", s.Original)
		}
		printStatus("Suggested", "%s", s.Suggested)
	}
}

func init() {
	chatCmd.Flags().String("persona", "", "archie (default) or an entity id to roleplay")
	chatCmd.Flags().String("chapter", "", "chapter id the conversation is about")
	chatCmd.Flags().StringSlice("ref", nil, "entity or chapter ids to include as lore")
	chatCmd.Flags().Bool("reset", false, "exclude all earlier messages from future turns")
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Repo:    a.repo,
			Sweeper: a.sweeper,
			Prompts: a.prompts,
			Version: version,
		})
		if err := server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(dataOut, "  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(args[0], args[1]); err != nil {
			if strings.HasPrefix(err.Error(), "unknown config key") {
				printError("valid keys: %s", strings.Join(config.ValidKeys(), ", "))
			}
			return err
		}
		printSuccess("Set %s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
