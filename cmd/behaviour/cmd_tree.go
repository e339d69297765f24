package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeusync/behaviour/internal/core/bt"
	"github.com/zeusync/behaviour/internal/core/observability/log"
	"github.com/zeusync/behaviour/internal/store"
)

func (c *cli) logger() log.Log {
	if c.log == nil {
		c.log = log.NewWithConfig(c.cfg.Log)
	}
	return c.log
}

func (c *cli) store() (*store.FileStore, error) {
	return store.NewFileStore(c.cfg.Store, c.logger())
}

func (c *cli) treeOptions() ([]bt.Option, error) {
	policy, err := c.cfg.Policy.Policy()
	if err != nil {
		return nil, err
	}
	return []bt.Option{bt.WithRegistry(bt.NewDefaultRegistry()), bt.WithPolicy(policy)}, nil
}

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file...]",
		Short: "Check that definition files are well formed and buildable",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.treeOptions()
			if err != nil {
				return err
			}
			failed := 0
			for _, path := range args {
				tree, err := buildFile(path, opts)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s, %d nodes)\n", path, tree.Name(), tree.Len())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d definitions invalid", failed, len(args))
			}
			return nil
		},
	}
}

func buildFile(path string, opts []bt.Option) (*bt.Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	def, err := bt.Decode(f, bt.FormatFromPath(path))
	if err != nil {
		return nil, err
	}
	return bt.FromDefinition(def, opts...)
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored trees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.store()
			if err != nil {
				return err
			}
			names, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func (c *cli) inspectCmd() *cobra.Command {
	var (
		format string
		ticks  int
	)
	cmd := &cobra.Command{
		Use:   "inspect [tree]",
		Short: "Print a stored tree, optionally ticking it a number of times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := c.store()
			if err != nil {
				return err
			}
			def, err := s.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ticks <= 0 {
				return def.Encode(out, bt.Format(strings.ToLower(format)))
			}

			opts, err := c.treeOptions()
			if err != nil {
				return err
			}
			tree, err := bt.FromDefinition(def, opts...)
			if err != nil {
				return err
			}
			for i := 1; i <= ticks; i++ {
				fmt.Fprintf(out, "tick %d: %s\n", i, tree.Update())
			}
			printTree(out, tree)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(bt.FormatYAML), "output format (yaml or json)")
	cmd.Flags().IntVarP(&ticks, "ticks", "t", 0, "tick the tree this many times and print node states")
	return cmd
}

func printTree(w io.Writer, tree *bt.Tree) {
	tree.Traverse(func(n *bt.Node, depth int) bool {
		fmt.Fprintf(w, "%s%s %s [%s]\n", strings.Repeat("  ", depth), n.Variant(), n.ID(), n.State())
		return true
	})
}
