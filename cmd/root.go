// Package cmd wires up the CLI flags and dispatches to the
// orchestration engine.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/xiaoli123/robomongo/config"
	"github.com/xiaoli123/robomongo/internal/app"
	"github.com/xiaoli123/robomongo/internal/credentials"
	"github.com/xiaoli123/robomongo/internal/domain"
	"github.com/xiaoli123/robomongo/internal/driver"
	"github.com/xiaoli123/robomongo/internal/events"
	"github.com/xiaoli123/robomongo/internal/metrics"
	"github.com/xiaoli123/robomongo/tunnel"
	"github.com/xiaoli123/robomongo/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X github.com/xiaoli123/robomongo/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the requested mode: a connectivity test
// or a one-shot shell against a collection.
func Execute(ctx context.Context, args []string) error {
	settings := &config.ConnectionSettings{}
	config.LoadFromEnv(settings)

	fs := flag.NewFlagSet("robomongo", flag.ContinueOnError)

	// ── target ───────────────────────────────────────────────────
	fs.StringVar(&settings.Name, "name", settings.Name, "Connection display name")
	fs.StringVarP(&settings.Host, "host", "H", settings.Host, "Server host")
	fs.IntVarP(&settings.Port, "port", "p", settings.Port, "Server port")
	fs.StringVarP(&settings.DefaultDatabase, "db", "d", settings.DefaultDatabase, "Default database")
	fs.StringVarP(&settings.UserName, "user", "u", settings.UserName, "Database user")
	fs.StringVar(&settings.Password, "password", settings.Password, "Database password")
	fs.StringVar(&settings.ReplicaSet.SetName, "replica-set", settings.ReplicaSet.SetName, "Replica set name")
	fs.StringSliceVar(&settings.ReplicaSet.Members, "member", settings.ReplicaSet.Members,
		"Replica set member host:port (repeatable)")

	// ── SSH tunnel ───────────────────────────────────────────────
	var sshSpec string
	fs.StringVarP(&sshSpec, "ssh", "T", "", "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&settings.SSH.PrivateKeyFile, "ssh-key", settings.SSH.PrivateKeyFile, "SSH private key file")
	fs.BoolVar(&settings.SSH.AskPassword, "ssh-ask-password", settings.SSH.AskPassword,
		"Prompt for the SSH password / key passphrase")
	fs.BoolVar(&settings.SSH.StrictHostKey, "strict-hostkey", settings.SSH.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&settings.SSH.KnownHostsFile, "known-hosts", settings.SSH.KnownHostsFile, "Custom known_hosts path")

	// ── TLS ──────────────────────────────────────────────────────
	fs.BoolVar(&settings.SSL.Enabled, "ssl", settings.SSL.Enabled, "Connect with TLS")
	fs.StringVar(&settings.SSL.PemKeyFile, "ssl-pem", settings.SSL.PemKeyFile, "Client certificate PEM file")
	fs.BoolVar(&settings.SSL.AskPassphrase, "ssl-ask-passphrase", settings.SSL.AskPassphrase,
		"Prompt for the PEM key passphrase")
	fs.StringVar(&settings.SSL.CAFile, "ssl-ca", settings.SSL.CAFile, "CA certificate file")
	fs.BoolVar(&settings.SSL.AllowInvalidCertificates, "ssl-allow-invalid", settings.SSL.AllowInvalidCertificates,
		"Skip server certificate verification")

	// ── mode / output ────────────────────────────────────────────
	var (
		testOnly    bool
		waitSec     int
		showStats   bool
		verbose     int
		showVersion bool
		showHelp    bool
	)
	fs.BoolVarP(&testOnly, "test", "t", false, "Test the connection and exit")
	fs.IntVarP(&waitSec, "wait", "w", 60, "Seconds to wait for the connection")
	fs.BoolVar(&showStats, "stats", false, "Print session metrics on exit")
	fs.CountVarP(&verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("robomongo %s\n", version)
		return nil
	}

	if settings.Port == 0 {
		settings.Port = config.DefaultServerPort
	}
	if settings.SSL.PemKeyFile != "" {
		settings.SSL.Enabled = true
		settings.SSL.UsePemFile = true
	}
	if sshSpec != "" {
		user, host, port, err := config.ParseSSHSpec(sshSpec)
		if err != nil {
			return fmt.Errorf("ssh: %w", err)
		}
		settings.SSH.Enabled = true
		settings.SSH.UserName = user
		settings.SSH.Host = host
		settings.SSH.Port = port
		if settings.SSH.PrivateKeyFile != "" {
			settings.SSH.AuthMethod = config.SshAuthPublicKey
		} else {
			settings.SSH.AuthMethod = config.SshAuthPassword
		}
	}

	if err := settings.Validate(); err != nil {
		return err
	}

	collection := ""
	if rest := fs.Args(); len(rest) > 0 {
		collection = rest[0]
	}
	if !testOnly && collection == "" {
		return fmt.Errorf("collection name required (or use --test)")
	}

	return run(ctx, settings, runOptions{
		testOnly:   testOnly,
		collection: collection,
		wait:       time.Duration(waitSec) * time.Second,
		showStats:  showStats,
		verbose:    verbose,
	})
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Robomongo – MongoDB connection engine v%s

Opens a session to a MongoDB server, optionally through an SSH tunnel,
and runs a shell query against a collection.

Usage:
  robomongo [options] <collection>            List documents of a collection
  robomongo [options] --test                  Test connectivity and exit

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  robomongo -H db.example.com --test                  Connectivity check
  robomongo -H localhost -d shop orders               Print documents of shop.orders
  robomongo -T admin@bastion -H db-internal --test    Test through an SSH tunnel
  robomongo --member rs1:27017 --member rs2:27017 --replica-set rs0 --test
`)
}

// ── engine assembly ──────────────────────────────────────────────────

type runOptions struct {
	testOnly   bool
	collection string
	wait       time.Duration
	showStats  bool
	verbose    int
}

// doneExecutor signals completion of the one shell execution the CLI
// triggers.
type doneExecutor struct {
	inner domain.Executor
	done  chan error
}

func (d *doneExecutor) Execute(ctx context.Context, s *config.ConnectionSettings, script domain.ScriptInfo) error {
	err := d.inner.Execute(ctx, s, script)
	d.done <- err
	return err
}

func run(ctx context.Context, settings *config.ConnectionSettings, opts runOptions) error {
	logger := util.NewLogger(opts.verbose)
	bus := events.New()
	collector := metrics.New()
	worker := tunnel.NewWorker(bus, logger, collector)
	defer worker.Close()

	executor := &doneExecutor{
		inner: driver.NewExecutor(os.Stdout, logger),
		done:  make(chan error, 1),
	}

	// Outcome of the open, delivered by the server's own events.
	outcome := make(chan error, 1)
	bus.Subscribe(domain.TypeConnectionEstablished, events.HandlerFunc(func(events.Event) {
		select {
		case outcome <- nil:
		default:
		}
	}))
	bus.Subscribe(domain.TypeConnectionFailed, events.HandlerFunc(func(e events.Event) {
		f := e.(domain.ConnectionFailedEvent)
		select {
		case outcome <- fmt.Errorf("%s (%s)", f.Message, f.Reason):
		default:
		}
	}))

	engine := app.New(app.Options{
		Bus:          bus,
		Logger:       logger,
		Credentials:  &credentials.Terminal{},
		Connector:    driver.NewConnector(logger),
		Executor:     executor,
		TunnelWorker: worker,
		Metrics:      collector,
	})

	connType := domain.ConnectionPrimary
	if opts.testOnly {
		connType = domain.ConnectionTest
	}

	if !engine.OpenServer(settings, connType) {
		return fmt.Errorf("open aborted")
	}

	select {
	case err := <-outcome:
		if err != nil {
			return err
		}
	case <-time.After(opts.wait):
		return fmt.Errorf("no connection after %s", opts.wait)
	case <-ctx.Done():
		return ctx.Err()
	}

	logger.Info("connected to %s", settings.TargetLabel())
	if opts.testOnly {
		fmt.Println("ok")
		return finish(collector, opts)
	}

	// Find the registered primary and open the collection shell on it.
	var primary *domain.Server
	for _, s := range engine.Servers() {
		if s.Type() == domain.ConnectionPrimary {
			primary = s
		}
	}
	if primary == nil {
		return fmt.Errorf("primary connection is gone")
	}

	db := &domain.Database{Server: primary, Name: settings.DefaultDatabase}
	coll := &domain.Collection{Database: db, Name: opts.collection}
	shell := engine.OpenShellForCollection(coll, "")
	if shell == nil {
		return fmt.Errorf("opening shell failed")
	}
	defer engine.CloseShell(shell)

	select {
	case err := <-executor.done:
		if err != nil {
			return err
		}
	case <-time.After(opts.wait):
		return fmt.Errorf("shell did not finish after %s", opts.wait)
	case <-ctx.Done():
		return ctx.Err()
	}

	return finish(collector, opts)
}

func finish(collector *metrics.Collector, opts runOptions) error {
	if opts.showStats {
		fmt.Fprintln(os.Stderr, collector.JSON())
	}
	return nil
}
