package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/me/ilcdirac/internal/processlist"
	"github.com/me/ilcdirac/pkg/model"
)

type namedProcess struct {
	Name string `json:"name"`
	model.Process
}

func newProcessListCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "processlist",
		Short: "Query and update the ProcessList",
		Long: `The ProcessList maps physics process names to the generator tarball and
input template producing them. Commands talk to the server unless --file
names a local ProcessList.`,
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "Operate on this local ProcessList file instead of the server")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered processes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				procs, err := listProcesses(cmd.Context(), file)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-30s  %-10s  %-12s  %s\n", "NAME", "GENERATOR", "XSECTION", "TARBALL")
				for _, p := range procs {
					fmt.Fprintf(out, "%-30s  %-10s  %-12g  %s\n", p.Name, p.Generator, p.CrossSection, p.TarBallCSPath)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <name>",
			Short: "Show one process record",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				p, err := showProcess(cmd.Context(), file, args[0])
				if err != nil {
					return err
				}
				return printYAML(cmd.OutOrStdout(), map[string]model.Process{args[0]: p})
			},
		},
		&cobra.Command{
			Use:   "update <records.yaml>",
			Short: "Add or replace process records",
			Long:  "Records are read as a YAML map of process name to record; each replaces any record of the same name.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read records: %w", err)
				}
				var records map[string]model.Process
				if err := yaml.Unmarshal(data, &records); err != nil {
					return fmt.Errorf("parse records: %w", err)
				}
				if len(records) == 0 {
					return fmt.Errorf("no records in %s", args[0])
				}

				if file != "" {
					pl, err := processlist.Load(file)
					if err != nil {
						return err
					}
					pl.Update(records)
					if err := pl.Save(file); err != nil {
						return err
					}
				} else if _, err := client.Call(cmd.Context(), http.MethodPut, "/api/v1/processes/", records, nil); err != nil {
					return fmt.Errorf("update processes: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d process(es) updated\n", len(records))
				return nil
			},
		},
	)
	return cmd
}

func listProcesses(ctx context.Context, file string) ([]namedProcess, error) {
	if file != "" {
		pl, err := loadExisting(file)
		if err != nil {
			return nil, err
		}
		procs := pl.Processes()
		out := make([]namedProcess, 0, len(procs))
		for _, name := range pl.Names() {
			out = append(out, namedProcess{Name: name, Process: procs[name]})
		}
		return out, nil
	}
	var out []namedProcess
	if _, err := client.Call(ctx, http.MethodGet, "/api/v1/processes/", nil, &out); err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	return out, nil
}

func showProcess(ctx context.Context, file, name string) (model.Process, error) {
	if file != "" {
		pl, err := loadExisting(file)
		if err != nil {
			return model.Process{}, err
		}
		p, ok := pl.Lookup(name)
		if !ok {
			return model.Process{}, fmt.Errorf("process %q not found", name)
		}
		return p, nil
	}
	var p namedProcess
	if _, err := client.Call(ctx, http.MethodGet, "/api/v1/processes/"+url.PathEscape(name), nil, &p); err != nil {
		return model.Process{}, fmt.Errorf("get process: %w", err)
	}
	return p.Process, nil
}

func loadExisting(file string) (*processlist.ProcessList, error) {
	pl, err := processlist.Load(file)
	if err != nil {
		return nil, err
	}
	if !pl.OK() {
		return nil, fmt.Errorf("process list %s not found", file)
	}
	return pl, nil
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
