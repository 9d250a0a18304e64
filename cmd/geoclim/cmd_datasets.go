package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"geoclim/internal/schema"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List registered datasets",
	Args:  cobra.NoArgs,
	RunE:  runDatasets,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <dataset-id> [name=value...]",
	Short: "Resolve the download location of a dataset",
	Long: `Render the resource subpath and filename of a dataset from parameter values,
for example: geoclim resolve spartacus-v2-1d-1km parameter=tn year=2020`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(resolveCmd)
}

func runDatasets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tPARAMETERS\tFILENAME")
	for _, ds := range schema.Default().List() {
		params := make([]string, 0, len(ds.Parameters))
		for name := range ds.Parameters {
			params = append(params, name)
		}
		sort.Strings(params)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ds.ID, ds.Kind, strings.Join(params, ","), ds.FilenameTemplate)
	}
	return w.Flush()
}

func runResolve(cmd *cobra.Command, args []string) error {
	values := make(map[string]string, len(args)-1)
	for _, arg := range args[1:] {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return fmt.Errorf("parameter %q: expected name=value", arg)
		}
		values[name] = value
	}

	res, err := schema.Default().Resolve(args[0], values)
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(append(res.Subpath, res.Filename), "/"))
	return nil
}
