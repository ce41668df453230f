package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	config "github.com/maheshrc27/autopost/configs"
	"github.com/maheshrc27/autopost/internal/app"
	"github.com/maheshrc27/autopost/internal/models"
	"github.com/maheshrc27/autopost/internal/repository"
)

// --- run ---

// runCmd asks the server to publish so the run shares the server's
// per-account guard with scheduled runs.
var runCmd = &cobra.Command{
	Use:   "run <account-id>",
	Short: "Ask the server to publish for an account and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid account id %q", args[0])
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		cfg := config.LoadConfig()
		server, _ := cmd.Flags().GetString("server")
		if server == "" {
			server = cfg.ServerURL
		}
		apiKey, _ := cmd.Flags().GetString("api-key")
		if apiKey == "" {
			apiKey = cfg.APIKey
		}

		client := &http.Client{Timeout: cfg.RunTimeout + time.Minute}
		res, err := triggerRun(ctx, client, server, apiKey, id)
		if res != nil {
			if err := printJSON(res); err != nil {
				return err
			}
		}
		if err != nil {
			return err
		}
		if res.Status != models.RunStatusSuccess {
			return fmt.Errorf("run %s: %s", res.Status, res.Message)
		}
		return nil
	},
}

// triggerRun calls POST /api/accounts/:id/run. The result is returned
// whenever the server produced one, even for a failed run.
func triggerRun(ctx context.Context, client *http.Client, serverURL, apiKey string, id int64) (*models.RunResult, error) {
	if apiKey == "" {
		return nil, errors.New("an api key is required, set AUTOPOST_API_KEY or --api-key")
	}
	endpoint := fmt.Sprintf("%s/api/accounts/%d/run", strings.TrimRight(serverURL, "/"), id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reaching autopost server at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var res models.RunResult
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, fmt.Errorf("error parsing response: %w", err)
		}
		return &res, nil
	}

	var failure struct {
		Error  string            `json:"error"`
		Result *models.RunResult `json:"result"`
	}
	if err := json.Unmarshal(body, &failure); err != nil || failure.Error == "" {
		return nil, fmt.Errorf("server answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return failure.Result, fmt.Errorf("server answered %d: %s", resp.StatusCode, failure.Error)
}

// --- triggers ---

var triggersCmd = &cobra.Command{
	Use:   "triggers",
	Short: "Show the schedule built from the configured accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), config.LoadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Scheduler.Reload(cmd.Context()); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACCOUNT\tNAME\tSLOT")
		for _, t := range a.Scheduler.Triggers() {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", t.Time, t.AccountID, t.AccountName, t.Slot)
		}
		return w.Flush()
	},
}

// --- accounts ---

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List configured accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), config.LoadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		accounts, err := a.Accounts.List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tINSTAGRAM\tPLATFORM\tSTORAGE\tFOLDER\tSLOTS")
		for _, acct := range accounts {
			slots := ""
			for _, s := range acct.Slots() {
				if s.Enabled {
					slots += s.Time + " "
				}
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				acct.ID, acct.Name, acct.InstagramUsername, acct.Platform, acct.StorageProvider, acct.FolderID, slots)
		}
		return w.Flush()
	},
}

// --- apikey ---

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an API key and print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), config.LoadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.ApiKeys.Create(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(key.ApiKey)
		return nil
	},
}

// --- migrate ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		db, err := repository.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := repository.Migrate(db); err != nil {
			return err
		}
		fmt.Printf("migrations applied (%s)\n", cfg.DatabaseDriver)
		return nil
	},
}

func init() {
	runCmd.Flags().String("server", "", "autopost server URL (default AUTOPOST_SERVER_URL)")
	runCmd.Flags().String("api-key", "", "API key for the server (default AUTOPOST_API_KEY)")
	apikeyCmd.AddCommand(apikeyCreateCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
