package cli

import (
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"
)

func logJSONCmd(cmd cobra.Command, v any) {
	m, err := json.Marshal(v)
	if err != nil {
		logErrorCmd(cmd, err)

		return
	}

	pj, err := prettyjson.Format(m)
	if err != nil {
		logErrorCmd(cmd, err)

		return
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n\n", string(pj))
}

func logUsageCmd(cmd cobra.Command, u string) {
	fmt.Fprintf(cmd.OutOrStdout(), color.YellowString("\nusage: %s\n\n"), u)
}

func logErrorCmd(cmd cobra.Command, err error) {
	boldRed := color.New(color.FgRed, color.Bold)
	boldRed.Fprint(cmd.ErrOrStderr(), "\nerror: ")

	fmt.Fprintf(cmd.ErrOrStderr(), "%s\n\n", color.RedString(err.Error()))
}
