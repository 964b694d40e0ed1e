package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mamaar/goextract/internal/config"
	"github.com/mamaar/goextract/pkg/analysis"
	"github.com/mamaar/goextract/pkg/refactor"
	"github.com/mamaar/goextract/pkg/types"
)

// app is the state shared by the commands of one invocation.
type app struct {
	v       *viper.Viper
	cfgFile string
	root    string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the goextract command tree.
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}
	cmd := &cobra.Command{
		Use:   "goextract",
		Short: "Extract Go expressions into struct fields and function parameters",
		Long: `goextract moves an expression out of a method body into a new field of
the receiver's struct, or out of a function body into a new parameter whose
callers pass the expression as an argument.

Positions are byte offsets or line:column pairs (1-based, byte columns).
Without --write the change is only shown as a diff.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./goextract.yaml)")
	flags.StringVar(&a.root, "root", ".", "root directory of the Go module")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.StringP("output", "o", "text", "output format (text, json, yaml)")
	flags.Bool("color", true, "colorize text output")

	for key, flag := range map[string]string{
		"log.level":     "log-level",
		"log.format":    "log-format",
		"output.format": "output",
		"output.color":  "color",
	} {
		if err := a.v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Errorf("bind %s: %w", flag, err))
		}
	}

	cmd.AddCommand(
		newActionsCommand(a),
		newExtractCommand(a, types.ExtractFieldAction),
		newExtractCommand(a, types.ExtractParameterAction),
		newServeCommand(a),
		newLSPCommand(a),
		newVersionCommand(),
	)
	return cmd
}

// Execute runs the command line args and returns the process exit code.
func Execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = cfg.Logger(cmd.ErrOrStderr())
	return nil
}

// session is a loaded program together with the engine working on it.
type session struct {
	prog       *types.Program
	engine     *refactor.DefaultEngine
	serializer *refactor.Serializer
}

func (a *app) open(ctx context.Context) (*session, error) {
	parser := analysis.NewParser(a.logger).WithConcurrency(a.cfg.Engine.Concurrency)
	prog, err := parser.LoadProgram(ctx, a.root)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}

	rc := a.cfg.RefactorConfig()
	rc.Observer = func(s refactor.Step) {
		a.logger.Debug("applying step", "step", s.String())
	}
	oracle := analysis.NewOracle(a.logger).WithConcurrency(a.cfg.Engine.Concurrency)
	return &session{
		prog:       prog,
		engine:     refactor.NewEngine(oracle, rc, a.logger),
		serializer: refactor.NewSerializer(a.logger).WithContext(a.cfg.Output.Context),
	}, nil
}
