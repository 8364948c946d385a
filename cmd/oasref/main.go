package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitalvas/oasref/config"
	"github.com/vitalvas/oasref/openapi"
	"github.com/vitalvas/oasref/refsource"
	"github.com/vitalvas/oasref/routes"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	registry *refsource.Registry
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "oasref",
		Short:         "Inspect remote schema sources and generate OpenAPI documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default "+config.DefaultPath+")")

	load := func(cmd *cobra.Command) (*app, error) {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		registry, err := cfg.NewRegistry(cfg.Logger(cmd.ErrOrStderr()))
		if err != nil {
			return nil, err
		}
		return &app{cfg: cfg, registry: registry}, nil
	}

	root.AddCommand(newCheckCmd(load))
	root.AddCommand(newSourcesCmd(load))
	root.AddCommand(newGenerateCmd(load))
	root.AddCommand(newServeCmd(load))

	return root
}

type loadFunc func(cmd *cobra.Command) (*app, error)

func newCheckCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Fetch every source and report its state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			refreshErr := a.registry.Refresh(cmd.Context())

			out := cmd.OutOrStdout()
			for _, s := range a.registry.Sources() {
				if !s.Initialized() {
					fmt.Fprintf(out, "FAIL  %s  %s\n", s.Name(), s.Location())
					continue
				}
				fmt.Fprintf(out, "OK    %s  %s  (%d schemas)\n", s.Name(), s.Location(), len(s.Names()))
			}

			if refreshErr != nil {
				return fmt.Errorf("check failed: %w", refreshErr)
			}
			return nil
		},
	}
}

func newSourcesCmd(load loadFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect configured schema sources",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			for _, s := range a.registry.Sources() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.Name(), s.Location())
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <source> [schema]",
		Short: "List the schemas of a source, or print one of them",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			s, ok := a.registry.Resolve(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("%w: %s", refsource.ErrSourceNotFound, args[0])
			}

			if len(args) == 1 {
				if err := s.Initialize(cmd.Context(), false); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(s.Names(), "\n"))
				return nil
			}

			schema, err := s.Lookup(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(schema)
		},
	})

	return cmd
}

func newGenerateCmd(load loadFunc) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a document carrying the components published by the sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			gen, err := openapi.NewGenerator(a.cfg.GeneratorConfig(),
				openapi.WithRegistry(a.registry),
				openapi.WithLogger(a.cfg.Logger(cmd.ErrOrStderr())),
			)
			if err != nil {
				return err
			}

			doc := gen.Build(cmd.Context(), openapi.EndpointList(nil))

			var data []byte
			switch format {
			case "json":
				data, err = json.MarshalIndent(doc, "", "  ")
				data = append(data, '\n')
			case "yaml":
				data, err = doc.YAML()
			default:
				return fmt.Errorf("unsupported format %q, want json or yaml", format)
			}
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newServeCmd(load loadFunc) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the generated document and a documentation viewer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			logger := a.cfg.Logger(cmd.ErrOrStderr())

			handler, err := newDocsHandler(a, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{
				Addr:              a.cfg.HTTP.Addr,
				Handler:           handler,
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("serving documents", slog.String("addr", a.cfg.HTTP.Addr), slog.String("docs", a.cfg.HTTP.DocsPath))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default http.addr from config)")
	return cmd
}

// newDocsHandler builds the route table serving the document endpoints
// behind the configured middlewares.
func newDocsHandler(a *app, logger *slog.Logger) (http.Handler, error) {
	mws, err := a.cfg.Middlewares(logger)
	if err != nil {
		return nil, err
	}

	gen, err := openapi.NewGenerator(a.cfg.GeneratorConfig(),
		openapi.WithRegistry(a.registry),
		openapi.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	table := routes.NewTable(routes.WithLogger(logger))
	table.Use(mws...)
	gen.Handle(table, a.cfg.HTTP.DocsPath, table, &openapi.HandleConfig{
		UI: openapi.ParseDocsUI(a.cfg.HTTP.DocsUI),
	})
	return table, nil
}
