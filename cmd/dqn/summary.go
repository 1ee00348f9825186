package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/samuelfneumann/godqn/experiment"
	"github.com/samuelfneumann/godqn/summary"
	"github.com/spf13/cobra"
)

var tag string

var summaryCmd = &cobra.Command{
	Use:   "summary <run dir>",
	Short: "Print the summaries recorded during training",
	Long: `Print the scalars recorded with a tag in a run directory. If no
tag is given, the recorded tags are listed.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

func init() {
	summaryCmd.Flags().StringVarP(&tag, "tag", "t", "",
		fmt.Sprintf("Tag to print, e.g. %v", experiment.TestRewardTag))
}

func runSummary(cmd *cobra.Command, args []string) error {
	db, err := summary.OpenSQLite(args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	if tag == "" {
		tags, err := db.Tags()
		if err != nil {
			return err
		}
		for _, t := range tags {
			fmt.Fprintln(out, t)
		}
		return nil
	}

	scalars, err := db.Scalars(tag)
	if err != nil {
		return err
	}
	if len(scalars) == 0 {
		return fmt.Errorf("no scalars recorded with tag %q", tag)
	}

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "step\tvalue")
	for _, s := range scalars {
		fmt.Fprintf(w, "%v\t%v\n", s.Step, s.Value)
	}
	return w.Flush()
}
