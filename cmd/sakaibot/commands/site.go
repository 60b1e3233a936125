package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	participantsCmd.Flags().StringSlice("remove", nil, "Remove these participants from the worksite.")

	groupsCmd.AddCommand(groupsCreateCmd, groupsDeleteCmd)
	testsCmd.AddCommand(testsDelayCmd)
	rootCmd.AddCommand(groupsCmd, participantsCmd, testsCmd)
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Lists the groups of the worksite.",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		names, err := s.robot.Groups(cmd.Context())
		if err != nil {
			return err
		}
		renderNames(cmd.OutOrStdout(), "Group", names)
		return nil
	}),
}

var groupsCreateCmd = &cobra.Command{
	Use:   "create <name> [student id]...",
	Short: "Creates a group, students missing from the worksite are added first.",
	Args:  cobra.MinimumNArgs(1),
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		if err := s.robot.CreateGroup(cmd.Context(), args[0], args[1:]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created group %q\n", args[0])
		return nil
	}),
}

var groupsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Deletes a group.",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		if err := s.robot.DeleteGroup(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted group %q\n", args[0])
		return nil
	}),
}

var participantsCmd = &cobra.Command{
	Use:   "participants",
	Short: "Lists the participants of the worksite, or removes some with --remove.",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		remove, _ := cmd.Flags().GetStringSlice("remove")
		if len(remove) > 0 {
			removed, err := s.robot.RemoveParticipants(cmd.Context(), remove)
			if err != nil {
				return err
			}
			renderNames(cmd.OutOrStdout(), "Removed", removed)
			return nil
		}
		users, err := s.robot.Participants(cmd.Context())
		if err != nil {
			return err
		}
		renderUsers(cmd.OutOrStdout(), users)
		return nil
	}),
}

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "Lists the published tests and quizzes of the worksite.",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		names, err := s.robot.Tests(cmd.Context())
		if err != nil {
			return err
		}
		renderNames(cmd.OutOrStdout(), "Test", names)
		return nil
	}),
}

var testsDelayCmd = &cobra.Command{
	Use:   "delay <test> <minutes>",
	Short: "Moves the due date of a test to now plus minutes.",
	Args:  cobra.ExactArgs(2),
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		minutes, err := strconv.Atoi(args[1])
		if err != nil || minutes < 0 {
			return fmt.Errorf("minutes must be a non negative number, got %q", args[1])
		}
		if _, err := s.robot.Tests(cmd.Context()); err != nil {
			return err
		}
		assigned, err := s.robot.SetTestDelay(cmd.Context(), args[0], minutes)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is due %s\n", assigned.Name, assigned.Due.Format(time.DateTime))
		return nil
	}),
}
