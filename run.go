package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cepro/scriptedemitter/api"
	"github.com/cepro/scriptedemitter/config"
	dataplatform "github.com/cepro/scriptedemitter/data_platform"
	"github.com/cepro/scriptedemitter/emitter"
	"github.com/cepro/scriptedemitter/modbus"
	"github.com/cepro/scriptedemitter/repository"
	"github.com/cepro/scriptedemitter/scripted"
	"github.com/cepro/scriptedemitter/supabase"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configPath string
	envPath    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured emitters until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.Read(configPath)
		if err != nil {
			return err
		}
		conf.Secrets, err = config.ReadSecrets(envPath)
		if err != nil {
			return err
		}
		err = conf.Validate()
		if err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, conf)
	},
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "config.json", "path to the JSON config file")
	runCmd.Flags().StringVar(&envPath, "env", ".env", "path to an optional file of environment variables")
	rootCmd.AddCommand(runCmd)
}

// run builds the emitters and serves them until the context is cancelled.
func run(ctx context.Context, conf config.Config) error {

	slog.Info("Starting emitters...", "num_emitters", len(conf.Emitters))

	repos := newRepositories()

	var store *stateStore
	if conf.StateStore.Path != "" {
		repo, err := repos.open(conf.StateStore.Path)
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		store = &stateStore{repo: repo, conf: conf}
	}

	provider := emitter.NewProvider()
	provider.RegisterFactory(scripted.EmitterType, &scripted.Factory{Logger: slog.Default()})

	emitters := make([]emitter.DataEmitter, 0, len(conf.Emitters))
	defer func() {
		for _, e := range emitters {
			e.Dispose()
		}
	}()
	for _, ec := range conf.Emitters {
		e, err := buildEmitter(ctx, provider, store, ec)
		if err != nil {
			return fmt.Errorf("build emitter '%s': %w", ec.ID, err)
		}
		emitters = append(emitters, e)
	}

	g, gctx := errgroup.WithContext(ctx)

	if conf.DataPlatform.Enabled() {
		repo, err := repos.open(conf.DataPlatform.BufferPath)
		if err != nil {
			return fmt.Errorf("open buffer repository: %w", err)
		}
		uploader := supabase.New(
			conf.DataPlatform.Supabase.Url,
			conf.Secrets.SupabaseKey,
			conf.Secrets.SupabaseUserKey,
			conf.DataPlatform.Supabase.Schema,
			0,
		)
		dataPlatform := dataplatform.New(uploader, repo)
		for _, e := range emitters {
			dataPlatform.Attach(e)
		}
		g.Go(func() error {
			dataPlatform.Run(gctx, conf.DataPlatform.UploadInterval())
			return nil
		})
	}

	for i, ec := range conf.Emitters {
		if ec.Modbus == nil {
			continue
		}
		block, err := ec.Modbus.RegisterBlock(ec.ID)
		if err != nil {
			return fmt.Errorf("emitter '%s': %w", ec.ID, err)
		}
		server, err := modbus.NewServer(ec.Modbus.URL(), block)
		if err != nil {
			return fmt.Errorf("emitter '%s': %w", ec.ID, err)
		}
		server.Attach(emitters[i])
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	if conf.API.Listen != "" {
		var saver api.StateSaver
		if store != nil {
			saver = store
		}
		server := api.New(emitters, saver)
		g.Go(func() error {
			return server.Run(gctx, conf.API.Listen)
		})
	}

	for i, ec := range conf.Emitters {
		if ec.AutoStart {
			emitters[i].Start()
		}
	}

	// wait for an interrupt, or for one of the servers to fail
	<-gctx.Done()
	err := g.Wait()

	slog.Info("Exiting")
	return err
}

// repositories opens each database file once, so that the state store and the event buffer may share a file.
type repositories struct {
	byPath map[string]*repository.Repository
}

func newRepositories() *repositories {
	return &repositories{byPath: make(map[string]*repository.Repository)}
}

func (r *repositories) open(path string) (*repository.Repository, error) {
	if repo, ok := r.byPath[path]; ok {
		return repo, nil
	}
	repo, err := repository.New(path)
	if err != nil {
		return nil, err
	}
	r.byPath[path] = repo
	return repo, nil
}
