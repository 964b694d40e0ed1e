package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mamaar/goextract/pkg/types"
)

type selectionFlags struct {
	end string
}

func (f *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.end, "end", "", "end of the selection (offset or line:column); defaults to the start")
}

func newActionsCommand(a *app) *cobra.Command {
	var sel selectionFlags
	cmd := &cobra.Command{
		Use:   "actions <file> <position>",
		Short: "List the extractions offered for a position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			u, err := resolveFile(s.prog, args[0])
			if err != nil {
				return err
			}
			span, err := parseSpan(u, args[1], sel.end)
			if err != nil {
				return err
			}
			actions, err := s.engine.OfferActions(ctx, s.prog, u.ID, span)
			if err != nil {
				return err
			}
			reports := make([]actionReport, 0, len(actions))
			for _, act := range actions {
				reports = append(reports, actionReport{
					Kind:        act.Kind().String(),
					Title:       act.Title(),
					Description: act.Description(),
				})
			}
			return a.print(cmd.OutOrStdout(), reports, func(p *printer) { p.actions(reports) })
		},
	}
	sel.register(cmd)
	return cmd
}

func newExtractCommand(a *app, kind types.ActionKind) *cobra.Command {
	var (
		sel   selectionFlags
		name  string
		write bool
	)
	use, short := "field", "Extract an expression into a field of the receiver's struct"
	if kind == types.ExtractParameterAction {
		use, short = "parameter", "Extract an expression into a parameter of the enclosing function"
	}

	cmd := &cobra.Command{
		Use:   use + " <file> <position>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(ctx)
			if err != nil {
				return err
			}
			u, err := resolveFile(s.prog, args[0])
			if err != nil {
				return err
			}
			span, err := parseSpan(u, args[1], sel.end)
			if err != nil {
				return err
			}

			req := types.ExtractRequest{Unit: u.ID, Span: span, Name: name}
			var res *types.Result
			if kind == types.ExtractFieldAction {
				res, err = s.engine.ExtractField(ctx, s.prog, req)
			} else {
				res, err = s.engine.ExtractParameter(ctx, s.prog, req)
			}
			if err != nil {
				return err
			}

			diffs, err := s.serializer.Diff(s.prog, res.Program)
			if err != nil {
				return err
			}
			rep := &report{
				Action: kind.Title(),
				Files:  diffs,
				Issues: issueReports(s.prog.Root, res.Issues),
			}
			if write {
				written, err := s.serializer.Commit(s.prog, res.Program)
				rep.Written = relPaths(s.prog.Root, written)
				if err != nil {
					if len(rep.Written) > 0 {
						return fmt.Errorf("write changes (left written: %s): %w", strings.Join(rep.Written, ", "), err)
					}
					return fmt.Errorf("write changes: %w", err)
				}
			}
			return a.print(cmd.OutOrStdout(), rep, func(p *printer) { p.report(rep) })
		},
	}
	sel.register(cmd)
	cmd.Flags().StringVarP(&name, "name", "n", "", "name of the new "+use+"; synthesized from the expression when empty")
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the changes to disk")
	return cmd
}
