package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"qcsync/internal/app"
	"qcsync/internal/config"
	"qcsync/internal/qc"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a QCApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Capture", "Sync").
// When unlock is true and the queue is encrypted, the passphrase is requested.
func newApp(cmd *cobra.Command, operation string, unlock bool) (*app.QCApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewQCApp(cmd.Context(), cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	if unlock && a.NeedsPassphrase() {
		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := a.Unlock(passphrase); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// readPassphrase returns QC_PASSPHRASE if set, otherwise prompts on the terminal.
func readPassphrase(prompt string) (string, error) {
	if p := os.Getenv("QC_PASSPHRASE"); p != "" {
		return p, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("passphrase required: set QC_PASSPHRASE or run from a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

var rootCmd = &cobra.Command{
	Use:          "qc",
	Short:        "Offline-first quality-control capture and sync",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return app.LoadEnv()
	},
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
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		deviceID := uuid.New().String()
		cfg := config.NewConfig(deviceID, defaults["base_dir"])

		if encrypt {
			cfg.EnableEncryption()
			passphrase, err := readPassphrase("New passphrase: ")
			if err != nil {
				return err
			}
			if passphrase == "" {
				return fmt.Errorf("passphrase must not be empty")
			}
			if err := app.SetupEncryption(cfg, passphrase); err != nil {
				return err
			}
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		if encrypt {
			fmt.Printf("Queue encrypted with key %s\n", cfg.Encryption.PublicKeyPath)
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device ID:    %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("Queue:        %s %s\n", cfg.Queue.Type, cfg.Queue.DataDir)
		fmt.Printf("Remote:       %s\n", describeRemote(cfg.Remote))
		fmt.Printf("Connectivity: %s\n", describeConnectivity(cfg.Connectivity))
		fmt.Printf("Encryption:   %s\n", cfg.Encryption.Type)
		fmt.Printf("Batch Size:   %d\n", cfg.Sync.BatchSizeOrDefault())
		return nil
	},
}

func describeRemote(r config.RemoteConfig) string {
	switch r.Type {
	case "s3":
		return fmt.Sprintf("s3://%s/%s", r.S3Bucket, r.S3Prefix)
	case "filesystem":
		return "filesystem " + r.FSRoot
	case "memory":
		return "memory"
	default:
		return r.URL
	}
}

func describeConnectivity(c config.ConnectivityConfig) string {
	switch c.Type {
	case "file":
		return "file " + c.StateFile
	case "static":
		return "static " + c.State
	default:
		return fmt.Sprintf("probe %s every %s", c.ProbeURL, c.ProbeInterval)
	}
}

// capture command
var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record a QC inspection",
	RunE: func(cmd *cobra.Command, args []string) error {
		delivery, _ := cmd.Flags().GetString("delivery")
		product, _ := cmd.Flags().GetString("product")
		accepted, _ := cmd.Flags().GetFloat64("accepted")
		rejected, _ := cmd.Flags().GetFloat64("rejected")
		reasons, _ := cmd.Flags().GetStringSlice("reason")
		notes, _ := cmd.Flags().GetString("notes")

		a, err := newApp(cmd, "Capture", false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Capture(cmd.Context(), qc.Draft{
			FarmerDeliveryID: delivery,
			ProductID:        product,
			AcceptedQuantity: accepted,
			RejectedQuantity: rejected,
			RejectionReasons: reasons,
			Notes:            notes,
		})
		var rejection *qc.RejectedError
		switch {
		case errors.As(err, &rejection):
			return fmt.Errorf("not saved: %s", rejection.Reason)
		case errors.Is(err, qc.ErrDurability):
			return fmt.Errorf("not saved: %w", err)
		case err != nil:
			return err
		}

		switch res.Status {
		case qc.SavedOnline:
			fmt.Println("Saved online")
		default:
			fmt.Printf("Saved locally, pending sync (#%d)\n", res.Record.Sequence)
		}
		return nil
	},
}

// pending command
var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List entries waiting to sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Pending", true)
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Pending()
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("Nothing pending.")
			return nil
		}

		for _, r := range records {
			e := r.Entry
			fmt.Printf("#%-5d  %s  %-12s  %-12s  accepted:%g  rejected:%g  %s\n",
				r.Sequence,
				formatTime(e.Timestamp),
				e.FarmerDeliveryID,
				e.ProductID,
				e.AcceptedQuantity,
				e.RejectedQuantity,
				strings.Join(e.RejectionReasons, ","),
			)
		}
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and pending count",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Status", false)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status()
		if err != nil {
			return err
		}

		fmt.Printf("Device:   %s\n", st.DeviceID)
		fmt.Printf("State:    %s\n", st.State)
		fmt.Printf("Pending:  %d\n", st.Pending)
		fmt.Printf("Schema:   %s\n", st.Schema)
		if st.LastPass != nil {
			fmt.Printf("Last sync: %s  %s  accepted:%d rejected:%d deferred:%d\n",
				formatTime(st.LastPass.StartedAt),
				st.LastPass.Status,
				st.LastPass.Accepted,
				st.LastPass.Rejected,
				st.LastPass.Deferred,
			)
		}
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send pending entries now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Sync", true)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Sync(cmd.Context())
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		printReport(report)
		return nil
	},
}

func printReport(r *qc.SyncReport) {
	if r.Coalesced {
		fmt.Println("A sync is already running.")
		return
	}
	fmt.Printf("Synced %d of %d (rejected %d, still pending %d)\n",
		len(r.Accepted), r.Pending, len(r.Rejections), r.Deferred)
	for _, rej := range r.Rejections {
		fmt.Printf("  rejected #%d %s/%s: %s\n", rej.Sequence, rej.Entry.FarmerDeliveryID, rej.Entry.ProductID, rej.Reason)
	}
	if r.Interrupted() {
		fmt.Printf("  remote unreachable, will retry: %v\n", r.TransportErr)
	}
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the background sync task until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Run", true)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(cmd.Context(), func(r *qc.SyncReport) {
			if r.Pending > 0 {
				printReport(r)
			}
		})
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync pass history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "History", false)
		if err != nil {
			return err
		}
		defer a.Close()

		passes, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(passes) == 0 {
			fmt.Println("No sync passes recorded.")
			return nil
		}

		for _, p := range passes {
			duration := ""
			if p.FinishedAt != nil {
				duration = p.FinishedAt.Sub(p.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-10s  %s  %-11s  pending:%d accepted:%d rejected:%d deferred:%d  %s\n",
				p.ID,
				p.Trigger,
				formatTime(p.StartedAt),
				p.Status,
				p.Pending,
				p.Accepted,
				p.Rejected,
				p.Deferred,
				duration,
			)
		}
		return nil
	},
}

// rejections command
var rejectionsCmd = &cobra.Command{
	Use:   "rejections",
	Short: "View entries the remote store refused",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "Rejections", true)
		if err != nil {
			return err
		}
		defer a.Close()

		rejections, err := a.Rejections(limit)
		if err != nil {
			return err
		}

		if len(rejections) == 0 {
			fmt.Println("No rejections.")
			return nil
		}

		for _, r := range rejections {
			seq := "direct"
			if r.Sequence != 0 {
				seq = fmt.Sprintf("#%d", r.Sequence)
			}
			fmt.Printf("%-7s  %s  %-12s  %-12s  %s\n",
				seq,
				formatTime(r.RejectedAt),
				r.Entry.FarmerDeliveryID,
				r.Entry.ProductID,
				r.Reason,
			)
		}
		return nil
	},
}

// clear command
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all pending entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("refusing to drop unsynced entries without --yes")
		}

		a, err := newApp(cmd, "Clear", false)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Clear()
		if err != nil {
			return err
		}
		fmt.Printf("Dropped %d pending entries\n", n)
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export PATH",
	Short: "Write a copy of the local queue database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Export", false)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Export(args[0]); err != nil {
			return err
		}
		fmt.Printf("Queue exported to %s\n", args[0])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().Bool("encrypt", false, "Encrypt queued entries at rest with a passphrase-protected key")

	captureCmd.Flags().StringP("delivery", "d", "", "Farmer delivery ID")
	captureCmd.Flags().StringP("product", "p", "", "Product ID")
	captureCmd.Flags().Float64P("accepted", "a", 0, "Accepted quantity")
	captureCmd.Flags().Float64P("rejected", "r", 0, "Rejected quantity")
	captureCmd.Flags().StringSlice("reason", nil, "Rejection reason (repeatable)")
	captureCmd.Flags().String("notes", "", "Free-text notes")
	captureCmd.MarkFlagRequired("delivery")
	captureCmd.MarkFlagRequired("product")

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of passes to show")
	rejectionsCmd.Flags().IntP("limit", "n", 50, "Maximum number of rejections to show")
	clearCmd.Flags().Bool("yes", false, "Confirm dropping unsynced entries")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(rejectionsCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(exportCmd)
}
