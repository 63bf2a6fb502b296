package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/fragwatch/fragwatch"
)

func newCollectCmd(g *globalFlags) *cobra.Command {
	var player, platform, windowName, channel string
	cmd := &cobra.Command{
		Use:   "collect [group]",
		Short: "Collect and deliver stats now, for a group or a single player",
		Example: `  fragwatch collect g1 --window 7d
  fragwatch collect --player neo --platform xbox --window previous_month`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var group string
			if len(args) == 1 {
				group = args[0]
			}
			if group == "" && player == "" {
				return errors.New("need a group or --player")
			}
			k, err := fragwatch.ParseWindow(windowName)
			if err != nil {
				return err
			}
			svc, err := g.open(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer closeService(ctx, svc)

			if player != "" {
				ref := fragwatch.PlayerRef{GroupID: group, Username: player, Platform: platform}
				_, err = svc.ReportPlayer(ctx, ref, k, channel)
				return err
			}
			_, err = svc.ReportGroup(ctx, group, k, channel)
			return err
		},
	}
	cmd.Flags().StringVarP(&player, "player", "p", "", "collect one player instead of the whole group")
	cmd.Flags().StringVar(&platform, "platform", "", "platform hint for --player (steam, xbox, psn, epic)")
	cmd.Flags().StringVarP(&windowName, "window", "w", "today", "today, yesterday, rolling7, rolling30, previous_week, previous_month")
	cmd.Flags().StringVar(&channel, "channel", "", "destination channel for chat sinks")
	return cmd
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var trigger string
	cmd := &cobra.Command{
		Use:   "run <group>",
		Short: "Fire one of a group's triggers now, to its scheduled channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := fragwatch.ParseTrigger(trigger)
			if err != nil {
				return err
			}
			svc, err := g.open(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer closeService(ctx, svc)
			_, err = svc.RunNow(ctx, args[0], tr)
			return err
		},
	}
	cmd.Flags().StringVarP(&trigger, "trigger", "t", "daily", "daily, weekly or monthly")
	return cmd
}
