// ciftree converts scientific records between flat relational form and
// nested hierarchical documents, driven by a data dictionary.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cifworks/ciftree/internal/pipeline"
	"github.com/cifworks/ciftree/pkg/config"
	"github.com/cifworks/ciftree/pkg/errors"
	"github.com/cifworks/ciftree/pkg/json"
	"github.com/cifworks/ciftree/pkg/logger"
	"github.com/cifworks/ciftree/pkg/mapping"
	"github.com/cifworks/ciftree/pkg/meta"
)

var (
	version = "dev"
	commit  = "none"
)

type globalFlags struct {
	configPath string
	dictionary string
	xsdSchema  string
	jsonSchema string
	cacheDir   string
	strict     bool
	verbose    bool
	quiet      bool
}

var flags globalFlags

func main() {
	root := &cobra.Command{
		Use:   "ciftree",
		Short: "Dictionary-driven converter between flat records and hierarchical documents",
		Long: `ciftree nests flat, column-oriented records into hierarchical JSON or XML
documents using relationships declared in a data dictionary, and flattens
such documents back into flat records with foreign keys restored.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "configuration file")
	pf.StringVarP(&flags.dictionary, "dict", "d", "", "data dictionary source")
	pf.StringVar(&flags.xsdSchema, "xsd", "", "XML schema for validation and item placement")
	pf.StringVar(&flags.jsonSchema, "json-schema", "", "JSON schema for validation")
	pf.StringVar(&flags.cacheDir, "cache-dir", "", "metadata cache directory")
	pf.BoolVar(&flags.strict, "strict", false, "fail on validation and relationship errors")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "errors only")

	root.AddCommand(newResolveCmd(), newFlattenCmd(), newExportXMLCmd(), newMappingCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		report(err)
		os.Exit(1)
	}
}

// report prints the error with its individual violations, if any
func report(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	for _, v := range errors.ViolationsOf(err) {
		fmt.Fprintf(os.Stderr, "  - %s\n", v)
	}
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if flags.dictionary != "" {
		cfg.Paths.Dictionary = flags.dictionary
	}
	if flags.xsdSchema != "" {
		cfg.Paths.XSDSchema = flags.xsdSchema
	}
	if flags.jsonSchema != "" {
		cfg.Paths.JSONSchema = flags.jsonSchema
	}
	if flags.cacheDir != "" {
		cfg.Paths.CacheDir = flags.cacheDir
		cfg.Cache.DiskEnabled = true
	}
	if flags.strict {
		cfg.Conversion.Strict = true
	}
	if flags.verbose {
		cfg.Logging.Level = "debug"
	}
	if flags.quiet {
		cfg.Logging.Level = "error"
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize logging")
	}
	return cfg, cfg.Validate()
}

func openInput(args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeNotFound, "input %s", args[0])
	}
	return f, nil
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeData, "output %s", path)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type convertFunc func(p *pipeline.Pipeline, ctx context.Context, r io.Reader, w io.Writer, f pipeline.Format) error

func runConversion(cmd *cobra.Command, args []string, output, format string, convert convertFunc) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	in, err := openInput(args)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := openOutput(output)
	if err != nil {
		return err
	}
	defer out.Close()

	ctx := logger.WithContext(cmd.Context(), logger.ForOperation(cmd.Name()))
	return convert(p, ctx, in, out, pipeline.Format(format))
}

func newResolveCmd() *cobra.Command {
	var output, format string
	cmd := &cobra.Command{
		Use:   "resolve [flat-records-file]",
		Short: "Nest flat records into a hierarchical document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversion(cmd, args, output, format,
				func(p *pipeline.Pipeline, ctx context.Context, r io.Reader, w io.Writer, f pipeline.Format) error {
					return p.Resolve(ctx, r, w, f)
				})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "document format: json or xml")
	return cmd
}

func newFlattenCmd() *cobra.Command {
	var output, format string
	cmd := &cobra.Command{
		Use:   "flatten [document-file]",
		Short: "Flatten a hierarchical document into flat records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversion(cmd, args, output, format,
				func(p *pipeline.Pipeline, ctx context.Context, r io.Reader, w io.Writer, f pipeline.Format) error {
					return p.Flatten(ctx, r, w, f)
				})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "document format: json or xml")
	return cmd
}

// newExportXMLCmd is resolve with the XML format fixed, kept as its own
// command because XML export is the common path for archive deposition.
func newExportXMLCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export-xml [flat-records-file]",
		Short: "Nest flat records and write an XML document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConversion(cmd, args, output, string(pipeline.FormatXML),
				func(p *pipeline.Pipeline, ctx context.Context, r io.Reader, w io.Writer, f pipeline.Format) error {
					return p.Resolve(ctx, r, w, f)
				})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

// newMappingCmd prints the generated relationship table, which is the
// quickest way to inspect what a dictionary actually declares.
func newMappingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping",
		Short: "Show the mapping rules generated from the dictionary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Paths.Dictionary == "" {
				return errors.New(errors.ErrorTypeConfig, "a dictionary is required, use --dict")
			}

			store, err := meta.NewStore(meta.StoreOptions{
				MemoryEntries: cfg.Cache.MemoryEntries,
				Dir:           cfg.Paths.CacheDir,
				TTL:           cfg.Cache.TTL,
			})
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			dict, err := store.Dictionary(cfg.Paths.Dictionary)
			if err != nil {
				return err
			}
			var schema *meta.Schema
			if cfg.Paths.XSDSchema != "" {
				if schema, err = store.Schema(cfg.Paths.XSDSchema); err != nil {
					return err
				}
			}
			m, fk, err := mapping.Generate(dict, schema)
			if err != nil {
				return err
			}
			return printMapping(cmd.OutOrStdout(), m, fk)
		},
	}
	return cmd
}

type mappingSummary struct {
	Categories int               `json:"categories"`
	Links      []linkSummary     `json:"links"`
	Parents    map[string]string `json:"parents"`
}

type linkSummary struct {
	Child  string `json:"child"`
	Parent string `json:"parent"`
}

func printMapping(w io.Writer, m *mapping.Mapping, fk mapping.FkMap) error {
	summary := mappingSummary{
		Categories: len(m.Categories),
		Parents:    make(map[string]string, len(m.Parents)),
	}
	for child, link := range m.Parents {
		summary.Parents[child] = link.ParentCategory
	}
	for key, target := range fk {
		summary.Links = append(summary.Links, linkSummary{
			Child:  key.Category + "." + key.Item,
			Parent: target.Category + "." + target.Item,
		})
	}
	sort.Slice(summary.Links, func(i, j int) bool {
		return summary.Links[i].Child < summary.Links[j].Child
	})

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ciftree %s (%s)\n", version, commit)
			logger.Get().Debug("version requested", zap.String("version", version))
		},
	}
}
