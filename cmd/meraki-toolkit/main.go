package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"meraki-toolkit/internal/config"
	"meraki-toolkit/internal/dashboard"
	apperrors "meraki-toolkit/internal/errors"
	"meraki-toolkit/internal/executor"
	"meraki-toolkit/internal/filter"
	"meraki-toolkit/internal/inventory"
	"meraki-toolkit/internal/logging"
	"meraki-toolkit/internal/notify"
	"meraki-toolkit/internal/output"
	"meraki-toolkit/internal/passphrase"
	"meraki-toolkit/internal/progress"
	"meraki-toolkit/internal/rotation"
	"meraki-toolkit/internal/stats"
	"meraki-toolkit/internal/template"
)

var (
	// Build-time variables (set via -ldflags)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

// templateRoot is where psktemplategen writes new template sets
const templateRoot = "./templates/psk"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
		}
		os.Exit(getExitCode(err))
	}
}

// app carries the state shared by the subcommands of one invocation
type app struct {
	stdout io.Writer
	stderr io.Writer

	apiKey string
	cfg    *config.Config
	env    config.Environment
	source string

	flags pskFlags

	// openSession builds the session opener; tests replace it
	openSession func(logger *logging.Logger) rotation.Opener
}

// pskFlags holds the raw psk flag values; only flags the user set
// override the loaded configuration
type pskFlags struct {
	organizations  []string
	networks       []string
	tags           []string
	ssid           string
	passphrase     string
	passRandomize  bool
	dryRun         bool
	verbose        int
	mode           string
	concurrency    string
	outputMode     string
	logFormat      string
	showProgress   bool
	showStats      bool
	inventoryFile  string
	inventoryWrite bool

	recipients    []string
	emailTemplate string
	sender        string
	smtpServer    string
	smtpPort      int
	smtpMode      string
	smtpUser      string
	smtpPass      string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	return newApp(stdout, stderr).rootCmd()
}

func newApp(stdout, stderr io.Writer) *app {
	a := &app{stdout: stdout, stderr: stderr}
	a.openSession = a.opener
	return a
}

func (a *app) rootCmd() *cobra.Command {
	stdout, stderr := a.stdout, a.stderr

	rootCmd := &cobra.Command{
		Use:   "meraki-toolkit",
		Short: "Bulk administration of Meraki wireless networks",
		Long: `meraki-toolkit administers many Meraki dashboard networks at once.

The psk command changes the pre-shared key of one SSID across every
network selected by organization, network name and tag, and can email
the new key with a Wi-Fi QR code to a list of recipients.

Examples:
  # Preview a change on every network of one organization
  meraki-toolkit psk -o "Acme" -n ALL -s Guest --dryrun

  # Rotate the key on two networks and notify the front desk
  meraki-toolkit psk -o Acme -n "HQ,Branch" -s Guest -e desk@acme.example --smtp-server mail.acme.example

  # Generate an editable email template set
  meraki-toolkit psktemplategen`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return err
			}
			return &ExecutionError{}
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVarP(&a.apiKey, "apikey", "k", "", "Dashboard API key (default $"+dashboard.APIKeyEnvVar+")")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "meraki-toolkit %s\n", version)
			fmt.Fprintf(a.stdout, "Commit: %s\n", commit)
			fmt.Fprintf(a.stdout, "Built: %s\n", buildTime)
		},
	}

	templateCmd := &cobra.Command{
		Use:   "psktemplategen",
		Short: "Write the default PSK email templates to " + templateRoot,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := template.WriteDefaults(templateRoot)
			if err != nil {
				return &SetupError{Message: fmt.Sprintf("failed to write templates: %v", err)}
			}
			fmt.Fprintf(a.stdout, "Templates written to %s\n", dir)
			return nil
		},
	}

	rootCmd.AddCommand(versionCmd, templateCmd, a.newPSKCmd())
	return rootCmd
}

func (a *app) newPSKCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "psk",
		Short: "Change the pre-shared key of an SSID across networks",
		Long: `Change the pre-shared key of one SSID on every selected network.

Organizations and networks are matched by exact name; ALL selects every
one. Tags further restrict the networks to those carrying any of them.
Without --passphrase the key is taken from MERAKITK_PSK (several
candidates separated by '::') or generated.`,
		Args:    cobra.NoArgs,
		PreRunE: a.preparePSK,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPSK(cmd.Context())
		},
	}

	f := &a.flags
	flags := cmd.Flags()
	flags.StringSliceVarP(&f.organizations, "organization", "o", nil, "Organization names, or ALL")
	flags.StringSliceVarP(&f.networks, "network", "n", nil, "Network names, or ALL")
	flags.StringSliceVarP(&f.tags, "tags", "t", nil, "Only networks carrying any of these tags")
	flags.StringVarP(&f.ssid, "ssid", "s", "", "SSID name to update")
	flags.StringVarP(&f.passphrase, "passphrase", "p", "", "New passphrase (default $MERAKITK_PSK or generated)")
	flags.BoolVar(&f.passRandomize, "passrandomize", false, "Add a digit, a symbol and an uppercase letter to the passphrase")
	flags.BoolVarP(&f.dryRun, "dryrun", "d", false, "Print the planned changes without applying them")
	flags.CountVarP(&f.verbose, "verbose", "v", "Increase log verbosity (-v, -vv, -vvv)")
	flags.StringVar(&f.mode, "mode", "concurrent", "Execution mode (sequential, concurrent)")
	flags.StringVar(&f.concurrency, "concurrency", "auto", "Maximum concurrent dashboard calls ('auto' or number)")
	flags.StringVar(&f.outputMode, "output", "table", "Output format (table, json)")
	flags.StringVar(&f.logFormat, "log-format", "auto", "Log format (text, json, auto)")
	flags.BoolVar(&f.showProgress, "progress", false, "Show a progress bar while updating")
	flags.BoolVar(&f.showStats, "stats", false, "Show live dashboard call statistics")
	flags.StringVar(&f.inventoryFile, "inventory", "", "Work on an inventory snapshot file instead of the dashboard")
	flags.BoolVar(&f.inventoryWrite, "inventory-write", false, "Save inventory changes back to the snapshot file")

	flags.StringSliceVarP(&f.recipients, "email", "e", nil, "Email the new passphrase to these addresses")
	flags.StringVar(&f.emailTemplate, "emailtemplate", "", "Email template directory (default built-in)")
	flags.StringVar(&f.sender, "smtp-sender", config.DefaultSender, "Sender address or display name")
	flags.StringVar(&f.smtpServer, "smtp-server", "", "SMTP server (default from $MERAKITK_SMTP)")
	flags.IntVar(&f.smtpPort, "smtp-port", 0, "SMTP port (default by mode: 465, 587 or 25)")
	flags.StringVar(&f.smtpMode, "smtp-mode", "", "SMTP mode (TLS, STARTTLS, SMTP)")
	flags.StringVar(&f.smtpUser, "smtp-user", "", "SMTP user")
	flags.StringVar(&f.smtpPass, "smtp-pass", "", "SMTP password")

	return cmd
}

// preparePSK loads configuration and applies explicitly set flags on top
func (a *app) preparePSK(cmd *cobra.Command, args []string) error {
	configManager := config.NewManager()
	loadedCfg, err := configManager.Load()
	if err != nil {
		return &SetupError{Message: fmt.Sprintf("failed to load configuration: %v", err)}
	}
	a.cfg = loadedCfg
	a.source = "CLI flags"
	if file := configManager.ConfigFileUsed(); file != "" {
		a.source = "CLI flags and " + file
	}

	overrideConfigWithFlags(cmd, a.cfg, &a.flags)
	if err := configManager.Validate(a.cfg); err != nil {
		return &SetupError{Message: fmt.Sprintf("configuration validation failed: %v", err)}
	}

	env, err := config.LoadEnvironment()
	if err != nil {
		return &SetupError{Message: fmt.Sprintf("failed to read environment: %v", err)}
	}
	a.env = env

	if a.cfg.Email.Enabled() {
		if a.cfg.Email.Template != "" {
			if err := template.ValidateDir(a.cfg.Email.Template); err != nil {
				return &SetupError{Message: err.Error()}
			}
		}
		smtp, err := a.env.ResolveSMTP(a.cfg.Email.SMTP)
		if err != nil {
			return &SetupError{Message: fmt.Sprintf("invalid email settings: %v", err)}
		}
		a.cfg.Email.SMTP = smtp
	}
	return nil
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config, f *pskFlags) {
	changed := cmd.Flags().Changed

	if changed("organization") {
		cfg.Organizations = f.organizations
	}
	if changed("network") {
		cfg.Networks = f.networks
	}
	if changed("tags") {
		cfg.Tags = f.tags
	}
	if changed("ssid") {
		cfg.SSID = f.ssid
	}
	if changed("passphrase") {
		cfg.Passphrase = f.passphrase
	}
	if changed("passrandomize") {
		cfg.PassRandomize = f.passRandomize
	}
	if changed("dryrun") {
		cfg.DryRun = f.dryRun
	}
	if changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if changed("mode") {
		cfg.Mode = f.mode
	}
	if changed("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if changed("output") {
		cfg.Output = f.outputMode
	}
	if changed("log-format") {
		cfg.LogFormat = f.logFormat
	}
	if changed("progress") {
		cfg.ShowProgress = f.showProgress
	}
	if changed("stats") {
		cfg.ShowStats = f.showStats
	}
	if changed("inventory") {
		cfg.Inventory = f.inventoryFile
	}
	if changed("inventory-write") {
		cfg.InventoryWrite = f.inventoryWrite
	}

	if changed("email") {
		cfg.Email.Recipients = f.recipients
	}
	if changed("emailtemplate") {
		cfg.Email.Template = f.emailTemplate
	}
	if changed("smtp-sender") {
		cfg.Email.Sender = f.sender
	}
	if changed("smtp-server") {
		cfg.Email.SMTP.Server = f.smtpServer
	}
	if changed("smtp-port") {
		cfg.Email.SMTP.Port = f.smtpPort
	}
	if changed("smtp-mode") {
		cfg.Email.SMTP.Mode = f.smtpMode
	}
	if changed("smtp-user") {
		cfg.Email.SMTP.User = f.smtpUser
	}
	if changed("smtp-pass") {
		cfg.Email.SMTP.Password = f.smtpPass
	}
}

func (a *app) runPSK(parent context.Context) error {
	cfg := a.cfg

	logger := logging.NewLoggerFromConfig(cfg.Verbose, cfg.LogFormat, a.stderr)
	logger.LogConfigLoad(a.source)

	mode, err := executor.ParseMode(cfg.Mode)
	if err != nil {
		return &SetupError{Message: err.Error()}
	}
	concurrency, err := executor.ParseConcurrency(cfg.Concurrency)
	if err != nil {
		logger.LogConfigError("concurrency", err)
		return &SetupError{Message: err.Error()}
	}
	outputMode, err := output.ParseMode(cfg.Output)
	if err != nil {
		return &SetupError{Message: err.Error()}
	}

	candidates := passphrase.ParseCandidates(a.env.PSK)
	if cfg.Passphrase != "" {
		candidates = []string{cfg.Passphrase}
	}
	psk, err := passphrase.NewProvider().Resolve(candidates, cfg.PassRandomize)
	if err != nil {
		return &SetupError{Message: err.Error()}
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Set up graceful shutdown handling for SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal, canceling operations", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	defer signal.Stop(sigChan)

	var statsTracker *stats.StatsTracker
	if cfg.ShowStats {
		statsTracker = stats.NewStatsTracker(a.stderr, true)
		statsTracker.Start()
		defer statsTracker.Stop()
	}

	var progressWriter io.Writer
	if cfg.ShowProgress {
		if progress.IsTerminal(a.stderr) {
			progressWriter = a.stderr
		} else {
			logger.Info("progress bar disabled", "reason", "stderr is not a terminal")
		}
	}

	errorCollector := apperrors.NewErrorCollector()
	criteria := filter.Criteria{
		Organizations: cfg.Organizations,
		Networks:      cfg.Networks,
		Tags:          cfg.Tags,
		SSID:          cfg.SSID,
	}

	rec, err := rotation.Run(ctx, rotation.Options{
		Criteria:       criteria,
		Passphrase:     psk,
		DryRun:         cfg.DryRun,
		Mode:           mode,
		Concurrency:    concurrency,
		Open:           a.openSession(logger),
		Logger:         logger,
		Errors:         errorCollector,
		Formatter:      output.NewFormatter(outputMode, a.stdout),
		Stats:          statsTracker,
		ProgressWriter: progressWriter,
	})
	if err != nil && rec == nil {
		if apperrors.TypeOf(err) == apperrors.ConfigurationErrorType {
			return &SetupError{Message: err.Error()}
		}
		return err
	}
	// A record next to an error means the passphrase changed and only
	// closing the session failed. Notification still goes out.
	closeErr := err
	if closeErr != nil {
		logger.Error("Failed to close dashboard session", "error", closeErr)
	}

	logger.Info("Execution completed",
		"ssid", criteria.SSID,
		"changed", rec != nil,
		"dry_run", cfg.DryRun,
		"error_summary", errorCollector.Summary(),
		"api_errors", errorCollector.CountByType(apperrors.APIErrorType))

	if rec == nil {
		return &ExecutionError{
			Message: fmt.Sprintf("no network was changed - %s", errorCollector.Summary()),
		}
	}

	reportErrors(a.stderr, errorCollector)

	if cfg.Email.Enabled() {
		settings := notify.Settings{
			Recipients:  cfg.Email.Recipients,
			Sender:      cfg.Email.Sender,
			TemplateDir: cfg.Email.Template,
			SMTP:        cfg.Email.SMTP,
		}
		// A failed notification is reported but does not undo the rotation
		if err := notify.NewMailer(logger).Send(ctx, rec, settings); err != nil {
			logger.Error("Failed to send notification", "error", err)
			fmt.Fprintf(a.stderr, "Warning: passphrase changed but the notification failed: %v\n", err)
		}
	}

	return closeErr
}

// reportErrors lists the per-network failures of a run that changed at
// least one network
func reportErrors(w io.Writer, collector *apperrors.ErrorCollector) {
	if !collector.HasErrors() {
		return
	}
	fmt.Fprintf(w, "Warning: completed with errors, %s\n", collector.Summary())
	for _, errorType := range []apperrors.ErrorType{apperrors.APIErrorType, apperrors.ConfirmationErrorType} {
		if !collector.HasErrorsOfType(errorType) {
			continue
		}
		for _, err := range collector.GetErrorsByType(errorType) {
			fmt.Fprintf(w, "  %s: %v\n", errorType, err)
		}
	}
}

// opener connects to the dashboard, or to an inventory snapshot when one
// is configured
func (a *app) opener(logger *logging.Logger) rotation.Opener {
	return func(ctx context.Context) (dashboard.Session, error) {
		if a.cfg.Inventory != "" {
			dir, err := inventory.Load(a.cfg.Inventory, a.cfg.InventoryWrite)
			if err != nil {
				return nil, apperrors.NewConfigurationError("loading inventory", err)
			}
			logger.Info("using inventory snapshot", "path", a.cfg.Inventory, "write_back", a.cfg.InventoryWrite)
			return dir, nil
		}

		key := a.apiKey
		if key == "" {
			key = a.env.APIKey
		}
		credential, err := dashboard.NewCredential(key)
		if err != nil {
			return nil, apperrors.NewConfigurationError("resolving API key", err)
		}
		client, err := dashboard.NewClient(dashboard.Config{
			Credential: credential,
			Logger:     logger,
			Version:    version,
		})
		if err != nil {
			return nil, apperrors.NewConfigurationError("creating dashboard client", err)
		}
		return client, nil
	}
}

// ExecutionError represents a run that changed nothing (exit code 1)
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// SetupError represents an error during setup/configuration (exit code 2)
type SetupError struct {
	Message string
}

func (e *SetupError) Error() string {
	return e.Message
}

// getExitCode determines the appropriate exit code based on error type
// Returns:
//   - 0: Success (at least one network changed, or planned in a dry run)
//   - 1: Nothing changed, or no command given
//   - 2: Setup error (invalid arguments, configuration, credentials, etc.)
func getExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch err.(type) {
	case *SetupError:
		return 2
	case *ExecutionError:
		return 1
	default:
		// Unknown errors are treated as setup errors
		return 2
	}
}
