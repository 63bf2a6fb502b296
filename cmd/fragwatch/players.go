package main

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newPlayersCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "players",
		Short: "Manage a group's tracked players",
	}

	var platform string
	add := &cobra.Command{
		Use:   "add <group> <username>",
		Short: "Track a player",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer closeService(ctx, svc)
			p, err := svc.AddPlayer(ctx, args[0], args[1], platform)
			if err != nil {
				return err
			}
			fmt.Printf("%s: tracking %s\n", p.GroupID, p.Username)
			return nil
		},
	}
	add.Flags().StringVar(&platform, "platform", "", "steam, xbox, psn or epic (default from config)")

	rm := &cobra.Command{
		Use:     "rm <group> <username>",
		Aliases: []string{"remove"},
		Short:   "Stop tracking a player",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer closeService(ctx, svc)
			if err := svc.RemovePlayer(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("%s: removed %s\n", args[0], args[1])
			return nil
		},
	}

	ls := &cobra.Command{
		Use:     "ls <group>",
		Aliases: []string{"list"},
		Short:   "List tracked players",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer closeService(ctx, svc)
			players, err := svc.ListPlayers(ctx, args[0])
			if err != nil {
				return err
			}

			table := tablewriter.NewWriter(os.Stdout)
			defer func() { _ = table.Close() }()
			table.Header([]string{"Player", "Platform", "Added"})
			rows := make([][]string, 0, len(players))
			for _, p := range players {
				plat := p.Platform
				if plat == "" {
					plat = "-"
				}
				rows = append(rows, []string{p.Username, plat, p.CreatedAt.Local().Format(time.DateOnly)})
			}
			if err := table.Bulk(rows); err != nil {
				return err
			}
			return table.Render()
		},
	}

	cmd.AddCommand(add, rm, ls)
	return cmd
}
