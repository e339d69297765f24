package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zeusync/behaviour/internal/core/bt"
	"github.com/zeusync/behaviour/internal/editor"
)

func (c *cli) editCmd() *cobra.Command {
	editCmd := &cobra.Command{
		Use:   "edit",
		Short: "Edit a stored tree; every change is saved immediately",
	}
	editCmd.AddCommand(
		c.editCreateCmd(),
		c.editConnectCmd(),
		c.editDisconnectCmd(),
		c.editDeleteCmd(),
		c.editMoveCmd(),
	)
	return editCmd
}

func (c *cli) session(cmd *cobra.Command, tree string) (*editor.Session, error) {
	s, err := c.store()
	if err != nil {
		return nil, err
	}
	policy, err := c.cfg.Policy.Policy()
	if err != nil {
		return nil, err
	}
	return editor.Open(cmd.Context(), s, bt.NewDefaultRegistry(), tree, c.logger(), bt.WithPolicy(policy))
}

func (c *cli) editCreateCmd() *cobra.Command {
	var params, meta []string
	cmd := &cobra.Command{
		Use:   "create [tree] [variant]",
		Short: "Create a detached node and print its id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseValues(params)
			if err != nil {
				return err
			}
			m, err := parseValues(meta)
			if err != nil {
				return err
			}
			sess, err := c.session(cmd, args[0])
			if err != nil {
				return err
			}
			id, err := sess.Create(cmd.Context(), args[1], p, m)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "node parameter as key=value (value parsed as yaml)")
	cmd.Flags().StringArrayVarP(&meta, "meta", "m", nil, "editor metadata as key=value")
	return cmd
}

func (c *cli) editConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect [tree] [parent] [child]",
		Short: "Attach child under parent",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.session(cmd, args[0])
			if err != nil {
				return err
			}
			return sess.Connect(cmd.Context(), args[1], args[2])
		},
	}
}

func (c *cli) editDisconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect [tree] [parent] [child]",
		Short: "Detach child from parent",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.session(cmd, args[0])
			if err != nil {
				return err
			}
			return sess.Disconnect(cmd.Context(), args[1], args[2])
		},
	}
}

func (c *cli) editDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [tree] [node]",
		Short: "Detach a node from its parents and delete it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.session(cmd, args[0])
			if err != nil {
				return err
			}
			return sess.Delete(cmd.Context(), args[1])
		},
	}
}

func (c *cli) editMoveCmd() *cobra.Command {
	var x, y float64
	cmd := &cobra.Command{
		Use:   "move [tree] [node]",
		Short: "Set the editor position of a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.session(cmd, args[0])
			if err != nil {
				return err
			}
			return sess.Move(cmd.Context(), args[1], map[string]any{"x": x, "y": y})
		},
	}
	cmd.Flags().Float64Var(&x, "x", 0, "horizontal position")
	cmd.Flags().Float64Var(&y, "y", 0, "vertical position")
	return cmd
}

// parseValues turns key=value pairs into a map, decoding each value as a yaml
// scalar so numbers and booleans keep their type.
func parseValues(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}
