package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"runclub/internal/app"
	"runclub/internal/club"
	"runclub/internal/config"
	"runclub/internal/encryption"
	"runclub/internal/render"
	"runclub/internal/stats"
	"runclub/internal/vault"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var verbose bool

// loadConfig reads the config file and applies environment overrides.
func loadConfig() (*config.Config, map[string]string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	app.ApplyEnv(cfg)
	return cfg, defaults, nil
}

// newApp reads the config and starts an App. The caller must defer app.Close().
func newApp(ctx context.Context) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(ctx, cfg, app.Options{
		Verbose:    verbose,
		Passphrase: func() (string, error) { return readPassphrase("Passphrase: ") },
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp runs fn against a started App and turns domain errors into
// user-facing messages.
func withApp(fn func(ctx context.Context, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := fn(ctx, a); err != nil {
			return errors.New(app.UserMessage(err))
		}
		return nil
	}
}

// readPassphrase prompts on stderr and reads from the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pass), nil
}

var rootCmd = &cobra.Command{
	Use:          "runclub",
	Short:        "Running club tracker",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		encrypt, _ := cmd.Flags().GetBool("encrypt")

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		var pass string
		if encrypt {
			cfg.Encryption.Type = "age"
			if pass, err = readPassphrase("Snapshot passphrase: "); err != nil {
				return fmt.Errorf("reading passphrase: %w", err)
			}
			confirm, err := readPassphrase("Confirm passphrase: ")
			if err != nil {
				return fmt.Errorf("reading passphrase: %w", err)
			}
			if pass != confirm {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		if encrypt {
			if err := encryption.NewAgeEncryptor(cfg.Encryption).Setup(pass); err != nil {
				return fmt.Errorf("failed to set up encryption: %w", err)
			}
			fmt.Printf("Encryption keys written to %s\n", filepath.Dir(cfg.Encryption.PrivateKeyPath))
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:  %s\n", cfg.HostID)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Remote:   %s\n", cfg.Remote.Type)
		fmt.Printf("Local:    %s %s\n", cfg.Local.Type, cfg.Local.DataDir)
		fmt.Printf("Encrypt:  %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:    %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

var configVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage vaults",
}

var configVaultCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify every configured vault is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		var failed int
		for _, vc := range cfg.Vaults {
			v, err := vault.NewVaultFromConfig(cmd.Context(), vc)
			if err == nil {
				err = v.ValidateSetup(cmd.Context())
			}
			if err != nil {
				failed++
				fmt.Printf("%-15s  FAIL  %v\n", vc.Name, err)
				continue
			}
			fmt.Printf("%-15s  ok\n", vc.Name)
		}
		if failed > 0 {
			return fmt.Errorf("%d vault(s) not usable", failed)
		}
		return nil
	},
}

// session commands
var loginCmd = &cobra.Command{
	Use:   "login NAME",
	Short: "Log in as NAME, creating the member if needed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			u, err := a.Login(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s [%s]\n", u.DisplayName, u.ID)
			return nil
		})(cmd, args)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored identity",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Logout(); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	}),
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current member and storage mode",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		render.WriteStatus(os.Stdout, a.Status())
		return nil
	}),
}

// activity commands
var checkinCmd = &cobra.Command{
	Use:   "checkin",
	Short: "Log a run",
	RunE: func(cmd *cobra.Command, args []string) error {
		form := club.CheckinForm{}
		form.Date, _ = cmd.Flags().GetString("date")
		form.Distance, _ = cmd.Flags().GetString("distance")
		form.Duration, _ = cmd.Flags().GetString("duration")
		form.Feeling, _ = cmd.Flags().GetString("feeling")
		form.PhotoRef, _ = cmd.Flags().GetString("photo")

		return withApp(func(ctx context.Context, a *app.App) error {
			if form.Date == "" {
				form.Date = club.Today(a.Engine())
			}
			run, err := a.SubmitCheckin(ctx, form)
			if err != nil && run.ID == "" {
				return err
			}
			fmt.Printf("Logged run %s: %gkm in %gmin, pace %s\n", run.ID, run.Distance, run.Duration, stats.FormatPace(stats.RunPace(run)))
			return err
		})(cmd, args)
	},
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show recent runs",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		render.WriteFeed(os.Stdout, a.Feed())
		return nil
	}),
}

var leaderboardCmd = &cobra.Command{
	Use:       "leaderboard [weekly|monthly|total]",
	Short:     "Show the top runners for a period",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(stats.Weekly), string(stats.Monthly), string(stats.Total)},
	RunE: func(cmd *cobra.Command, args []string) error {
		window := stats.Weekly
		if len(args) == 1 {
			w, err := stats.ParseWindow(args[0])
			if err != nil {
				return err
			}
			window = w
		}
		return withApp(func(ctx context.Context, a *app.App) error {
			if err := a.SelectLeaderboardWindow(window, render.TabControl(window)); err != nil {
				return err
			}
			render.WriteLeaderboard(os.Stdout, a.Leaderboard(ctx))
			return nil
		})(cmd, args)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List scheduled group runs",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		render.WriteEvents(os.Stdout, a.Events())
		return nil
	}),
}

var joinCmd = &cobra.Command{
	Use:   "join EVENT_ID",
	Short: "Join a group run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			ev, err := a.JoinEvent(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Joined %s (%d/%d)\n", ev.Title, len(ev.Participants), ev.MaxParticipants)
			return nil
		})(cmd, args)
	},
}

var leaveCmd = &cobra.Command{
	Use:   "leave EVENT_ID",
	Short: "Leave a group run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			ev, err := a.LeaveEvent(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Left %s (%d/%d)\n", ev.Title, len(ev.Participants), ev.MaxParticipants)
			return nil
		})(cmd, args)
	},
}

var commentCmd = &cobra.Command{
	Use:   "comment RUN_ID TEXT...",
	Short: "Comment on a run",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App) error {
			if _, err := a.Comment(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}
			fmt.Println("Comment posted")
			return nil
		})(cmd, args)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show club totals",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		render.WriteHome(os.Stdout, a.Home())
		return nil
	}),
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive session",
	RunE: withApp(func(ctx context.Context, a *app.App) error {
		return a.RunShell(ctx, os.Stdin, os.Stdout)
	}),
}

// snapshot commands
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Copy the local store to and from vaults",
}

var snapshotPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Export the local store to the vaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("vault")
		return withApp(func(ctx context.Context, a *app.App) error {
			version, err := a.PushSnapshot(ctx, name)
			if err != nil {
				return err
			}
			fmt.Printf("Pushed snapshot version %d\n", version)
			return nil
		})(cmd, args)
	},
}

var snapshotPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Replace the local store with a snapshot from a vault",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("vault")
		host, _ := cmd.Flags().GetString("host")
		return withApp(func(ctx context.Context, a *app.App) error {
			version, err := a.PullSnapshot(ctx, name, host)
			if err != nil {
				return err
			}
			fmt.Printf("Restored snapshot version %d\n", version)
			return nil
		})(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Copy log output to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("encrypt", false, "Generate a passphrase-protected key pair for snapshots")
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configVaultCmd)
	configVaultCmd.AddCommand(configVaultCheckCmd)

	// checkin flags
	checkinCmd.Flags().String("date", "", "Run date (YYYY-MM-DD, default today)")
	checkinCmd.Flags().String("distance", "", "Distance in km")
	checkinCmd.Flags().String("duration", "", "Duration in minutes")
	checkinCmd.Flags().String("feeling", "", "How the run felt")
	checkinCmd.Flags().String("photo", "", "Photo reference")

	// snapshot subcommands
	snapshotCmd.AddCommand(snapshotPushCmd)
	snapshotCmd.AddCommand(snapshotPullCmd)
	snapshotPushCmd.Flags().String("vault", "", "Vault name (default: all vaults)")
	snapshotPullCmd.Flags().String("vault", "", "Vault name (default: first vault)")
	snapshotPullCmd.Flags().String("host", "", "Host ID whose snapshot to restore (default: this host)")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(checkinCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(joinCmd)
	rootCmd.AddCommand(leaveCmd)
	rootCmd.AddCommand(commentCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(snapshotCmd)
}
