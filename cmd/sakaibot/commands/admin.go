package commands

import (
	"fmt"
	"time"

	"sakaibot/internal/sakai/model"
	"sakaibot/lib/timezone"

	"github.com/spf13/cobra"
)

// dateLayout is how dates are given on the command line.
const dateLayout = "2006-01-02 15:04"

func init() {
	usersCreateCmd.Flags().String("first", "", "First name.")
	usersCreateCmd.Flags().String("last", "", "Last name.")
	usersCreateCmd.Flags().String("email", "", "E-mail address.")
	usersCreateCmd.Flags().String("password", "", "Password, generated when empty.")
	usersCreateCmd.Flags().String("role", "", "Account type.")

	assignmentFlags(addAssignmentCmd)

	usersCmd.AddCommand(usersCreateCmd, usersRenameCmd)
	rootCmd.AddCommand(usersCmd, addAssignmentCmd)
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manages accounts through the administration workspace.",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Creates an account.",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		info := model.UserInfo{ID: args[0]}
		info.FirstName, _ = cmd.Flags().GetString("first")
		info.LastName, _ = cmd.Flags().GetString("last")
		info.Email, _ = cmd.Flags().GetString("email")
		info.Password, _ = cmd.Flags().GetString("password")
		info.Role, _ = cmd.Flags().GetString("role")

		password, err := s.robot.CreateUser(cmd.Context(), info)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s with password %s\n", info.ID, password)
		return nil
	}),
}

var usersRenameCmd = &cobra.Command{
	Use:   "rename <id> <first name> <last name>",
	Short: "Changes the name of an account.",
	Args:  cobra.ExactArgs(3),
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		if err := s.robot.RenameUser(cmd.Context(), args[0], args[1], args[2]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s %s\n", args[0], args[1], args[2])
		return nil
	}),
}

func assignmentFlags(cmd *cobra.Command) {
	cmd.Flags().String("description", "", "Instructions of the assignment.")
	cmd.Flags().String("grade", "", "Maximum points, ungraded when empty.")
	cmd.Flags().String("open", "", "Open date, "+dateLayout+", now when empty.")
	cmd.Flags().String("due", "", "Due date, "+dateLayout+", a week after opening when empty.")
	cmd.Flags().String("close", "", "Accept until, "+dateLayout+", the due date when empty.")
}

// parseDate reads a flag in the portal's time zone, fallback when empty.
func parseDate(cmd *cobra.Command, flag string, fallback time.Time) (time.Time, error) {
	value, _ := cmd.Flags().GetString(flag)
	if value == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, timezone.Location())
	if err != nil {
		return t, fmt.Errorf("--%s: %w", flag, err)
	}
	return t, nil
}

// newAssignmentItem builds the form input from the flags. Dates are
// validated to open <= due <= close.
func newAssignmentItem(cmd *cobra.Command, title string, now time.Time) (model.NewAssignmentItem, error) {
	item := model.NewAssignmentItem{Title: title}
	item.Description, _ = cmd.Flags().GetString("description")
	item.Grade, _ = cmd.Flags().GetString("grade")

	open, err := parseDate(cmd, "open", now)
	if err != nil {
		return item, err
	}
	due, err := parseDate(cmd, "due", open.AddDate(0, 0, 7))
	if err != nil {
		return item, err
	}
	closing, err := parseDate(cmd, "close", due)
	if err != nil {
		return item, err
	}
	if due.Before(open) || closing.Before(due) {
		return item, fmt.Errorf("dates must satisfy open <= due <= close")
	}
	item.Open = model.DatePartsOf(open)
	item.Due = model.DatePartsOf(due)
	item.Close = model.DatePartsOf(closing)
	return item, nil
}

var addAssignmentCmd = &cobra.Command{
	Use:   "add-assignment <title>",
	Short: "Posts a new assignment to the worksite.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		item, err := newAssignmentItem(cmd, args[0], timezone.Now())
		if err != nil {
			return err
		}
		return withSession(func(cmd *cobra.Command, args []string, s *session) error {
			added, err := s.robot.AddAssignment(cmd.Context(), item)
			if err != nil {
				return err
			}
			if !added.Success {
				return fmt.Errorf("assignment was not posted: %s", added.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), added.Message)
			return nil
		})(cmd, args)
	},
}
