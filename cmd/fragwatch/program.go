package main

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/fragwatch/fragwatch"
)

func newProgramCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "program <group> <channel> <HH:mm>",
		Short: "Schedule daily, weekly (Monday) and monthly (1st) reports for a group",
		Long: `Persist a group's delivery schedule, replacing any earlier one.

A running "fragwatch serve" picks the change up on its next start; use
PUT /groups/{group}/schedule to update a live server.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer closeService(ctx, svc)

			if _, err := svc.Program(ctx, args[0], args[1], args[2]); err != nil {
				return err
			}
			st, err := svc.Schedule(ctx, args[0])
			if err != nil {
				return err
			}
			return printSchedule(st)
		},
	}
}

func newCancelCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <group>",
		Short: "Remove a group's delivery schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := g.open(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer closeService(ctx, svc)
			if err := svc.Cancel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s: unscheduled\n", args[0])
			return nil
		},
	}
}

func printSchedule(st *fragwatch.ScheduleStatus) error {
	fmt.Printf("%s -> %s at %s (%s)\n", st.Schedule.GroupID, st.Schedule.ChannelRef, st.Schedule.TimeOfDay, st.State)
	table := tablewriter.NewWriter(os.Stdout)
	defer func() { _ = table.Close() }()
	table.Header([]string{"Trigger", "Next"})
	var rows [][]string
	for _, tr := range []fragwatch.Trigger{fragwatch.Daily, fragwatch.Weekly, fragwatch.Monthly} {
		if next, ok := st.Next[tr]; ok {
			rows = append(rows, []string{string(tr), next.Format(time.RFC1123)})
		}
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
