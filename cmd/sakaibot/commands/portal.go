package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	submissionsCmd.Flags().String("filter", "", "Only read this student id, or this group with --group.")
	submissionsCmd.Flags().Bool("group", false, "Treat --filter as a group or section name.")
	submissionsCmd.Flags().StringToString("comment", nil, "Replace the tutor comment of a student, id=comment.")

	rootCmd.AddCommand(worksitesCmd, assignmentsCmd, studentsCmd, submissionsCmd, gradeCmd)
}

var worksitesCmd = &cobra.Command{
	Use:   "worksites",
	Short: "Lists the worksites of the account.",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		names, err := s.robot.Worksites(cmd.Context())
		if err != nil {
			return err
		}
		renderNames(cmd.OutOrStdout(), "Worksite", names)
		return nil
	}),
}

var assignmentsCmd = &cobra.Command{
	Use:   "assignments",
	Short: "Lists the assignments of the worksite.",
	Args:  cobra.NoArgs,
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		if _, err := s.robot.Assignments(cmd.Context()); err != nil {
			return err
		}
		rosters, err := s.robot.Rosters(cmd.Context(), "")
		if err != nil {
			return err
		}
		renderAssignments(cmd.OutOrStdout(), rosters)
		return nil
	}),
}

var studentsCmd = &cobra.Command{
	Use:   "students [assignment]",
	Short: "Lists the students of one or every assignment, with their attachments.",
	Args:  cobra.MaximumNArgs(1),
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		title := ""
		if len(args) > 0 {
			title = args[0]
		}
		rosters, err := s.robot.Students(cmd.Context(), title)
		if err != nil {
			return err
		}
		for _, r := range rosters {
			renderRecords(cmd.OutOrStdout(), r.Title, r.Students)
		}
		return nil
	}),
}

var submissionsCmd = &cobra.Command{
	Use:   "submissions <assignment>",
	Short: "Reads the submissions of an assignment, or writes tutor comments with --comment.",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, args []string, s *session) error {
		filter, _ := cmd.Flags().GetString("filter")
		isGroup, _ := cmd.Flags().GetBool("group")
		comments, _ := cmd.Flags().GetStringToString("comment")

		if _, err := s.robot.Assignments(cmd.Context()); err != nil {
			return err
		}
		if len(comments) > 0 {
			ready, err := s.robot.WriteSubmissions(cmd.Context(), args[0], comments)
			if err != nil {
				return err
			}
			renderRecords(cmd.OutOrStdout(), ready.Assignment, ready.Records)
			return nil
		}
		ready, err := s.robot.Submissions(cmd.Context(), args[0], filter, isGroup)
		if err != nil {
			return err
		}
		renderRecords(cmd.OutOrStdout(), ready.Assignment, ready.Records)
		return nil
	}),
}

// parseMarks reads id=mark arguments.
func parseMarks(args []string) (map[string]string, error) {
	marks := make(map[string]string, len(args))
	for _, arg := range args {
		id, mark, ok := strings.Cut(arg, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("expected id=mark, got %q", arg)
		}
		if _, dup := marks[id]; dup {
			return nil, fmt.Errorf("student %q is graded twice", id)
		}
		marks[id] = strings.TrimSpace(mark)
	}
	return marks, nil
}

var gradeCmd = &cobra.Command{
	Use:   "grade <assignment> <id=mark>...",
	Short: "Grades students of an assignment.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		marks, err := parseMarks(args[1:])
		if err != nil {
			return err
		}
		return withSession(func(cmd *cobra.Command, args []string, s *session) error {
			if _, err := s.robot.Assignments(cmd.Context()); err != nil {
				return err
			}
			graded, err := s.robot.Grade(cmd.Context(), args[0], marks)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "Mark", "Graded", "Message")
			for _, g := range graded {
				tw.AppendRow(table.Row{g.StudentID, marks[g.StudentID], g.Success, g.Message})
			}
			tw.Render()
			return nil
		})(cmd, args)
	},
}
