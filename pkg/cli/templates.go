package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/secmon-lab/ringi/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdTemplates() *cli.Command {
	return &cli.Command{
		Name:    "templates",
		Aliases: []string{"t"},
		Usage:   "Show the built-in workflow templates",
		Action: func(ctx context.Context, c *cli.Command) error {
			printTemplates(os.Stdout, model.Templates())
			return nil
		},
	}
}

var (
	templateTitle = color.New(color.FgCyan, color.Bold)
	stageFlag     = color.New(color.FgYellow)
	stageDeadline = color.New(color.FgHiBlack)
)

func printTemplates(w io.Writer, templates []*model.WorkflowTemplate) {
	for i, t := range templates {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}
		_, _ = templateTitle.Fprintf(w, "%s (%s)\n", t.Name, t.Key)

		for j, st := range t.Stages {
			_, _ = fmt.Fprintf(w, "  %d. %-32s %s", j+1, st.Kind, st.RoleToken)
			if flags := stageFlags(st); flags != "" {
				_, _ = stageFlag.Fprintf(w, " [%s]", flags)
			}
			if d := model.DurationOf(st.Kind); d.DueDays > 0 {
				_, _ = stageDeadline.Fprintf(w, " due %dd", d.DueDays)
				if d.EscalationDays > 0 {
					_, _ = stageDeadline.Fprintf(w, ", escalate %dd", d.EscalationDays)
				}
			}
			_, _ = fmt.Fprintln(w)
		}
	}
}

func stageFlags(st model.StageTemplate) string {
	var flags []string
	if st.AutoComplete {
		flags = append(flags, "auto")
	}
	if st.RequiredLevel > 0 {
		flags = append(flags, fmt.Sprintf("level>=%d", st.RequiredLevel))
	}
	if st.MultiApprover {
		flags = append(flags, "majority")
	}
	if st.EmergencyOverride {
		flags = append(flags, "override:"+st.OverrideRoleToken)
	}
	return strings.Join(flags, " ")
}
