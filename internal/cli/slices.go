package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"
	"sigs.k8s.io/yaml"

	api "github.com/meshbed/testbed-manager/api/v1alpha1"
	"github.com/meshbed/testbed-manager/internal/client"
	"github.com/meshbed/testbed-manager/internal/validator"
)

func NewCmdSlices() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slices",
		Short: "Manage experiment slices",
	}
	cmd.AddCommand(NewCmdSlicesList())
	cmd.AddCommand(NewCmdSlicesGet())
	cmd.AddCommand(NewCmdSlicesCreate())
	cmd.AddCommand(NewCmdSlicesDelete())
	cmd.AddCommand(NewCmdSlicesRenew())
	return cmd
}

type SlicesListOptions struct {
	GlobalOptions

	States   []string
	Name     string
	AllUsers bool
	Limit    int
	Offset   int
	Output   string
}

func DefaultSlicesListOptions() *SlicesListOptions {
	return &SlicesListOptions{
		GlobalOptions: DefaultGlobalOptions(),

		Output: tableFormat,
	}
}

func NewCmdSlicesList() *cobra.Command {
	o := DefaultSlicesListOptions()
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List slices visible to the caller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *SlicesListOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringSliceVar(&o.States, "state", o.States, "Filter by slice state. May be repeated.")
	fs.StringVar(&o.Name, "name", o.Name, "Filter by slice name.")
	fs.BoolVar(&o.AllUsers, "all-users", o.AllUsers, "Include slices owned by other project members.")
	fs.IntVarP(&o.Limit, "limit", "l", o.Limit, "Maximum number of slices to list.")
	fs.IntVar(&o.Offset, "offset", o.Offset, "Number of slices to skip.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *SlicesListOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	if o.Limit < 0 || o.Offset < 0 {
		return fmt.Errorf("limit and offset must not be negative")
	}
	return nil
}

func (o *SlicesListOptions) Run(ctx context.Context, args []string) error {
	token, err := o.identityToken(ctx)
	if err != nil {
		return err
	}

	slices, err := o.Orchestrator().Slices(ctx, token, client.ListSlicesOptions{
		States:   o.States,
		Name:     o.Name,
		AllUsers: o.AllUsers,
		Limit:    o.Limit,
		Offset:   o.Offset,
	})
	if err != nil {
		return fmt.Errorf("listing slices: %w", err)
	}

	return printSlices(slices, o.Output)
}

type SlicesGetOptions struct {
	GlobalOptions

	Output string
}

func DefaultSlicesGetOptions() *SlicesGetOptions {
	return &SlicesGetOptions{
		GlobalOptions: DefaultGlobalOptions(),

		Output: jsonFormat,
	}
}

func NewCmdSlicesGet() *cobra.Command {
	o := DefaultSlicesGetOptions()
	cmd := &cobra.Command{
		Use:   "get SLICE_ID",
		Short: "Fetch one slice with its graph model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *SlicesGetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format. One of: (json, yaml).")
}

func (o *SlicesGetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if !funk.Contains([]string{jsonFormat, yamlFormat}, o.Output) {
		return fmt.Errorf("output format must be one of json, yaml")
	}
	return nil
}

func (o *SlicesGetOptions) Run(ctx context.Context, args []string) error {
	token, err := o.identityToken(ctx)
	if err != nil {
		return err
	}

	slice, err := o.Orchestrator().GetSlice(ctx, token, args[0])
	if err != nil {
		return fmt.Errorf("fetching slice: %w", err)
	}

	var marshalled []byte
	if o.Output == yamlFormat {
		marshalled, err = yaml.Marshal(slice)
	} else {
		marshalled, err = json.Marshal(slice)
	}
	if err != nil {
		return fmt.Errorf("marshalling slice: %w", err)
	}
	fmt.Printf("%s\n", string(marshalled))
	return nil
}

type SlicesCreateOptions struct {
	GlobalOptions

	Name           string
	ModelFile      string
	SSHKeyFiles    []string
	LeaseStartTime string
	LeaseEndTime   string
	LifetimeHours  int
	Output         string
}

func DefaultSlicesCreateOptions() *SlicesCreateOptions {
	return &SlicesCreateOptions{
		GlobalOptions: DefaultGlobalOptions(),

		Output: tableFormat,
	}
}

func NewCmdSlicesCreate() *cobra.Command {
	o := DefaultSlicesCreateOptions()
	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Submit a new slice",
		Example: "  testbedctl slices create --name myslice --model-file topo.json --sshkey-file ~/.ssh/id_ed25519.pub",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *SlicesCreateOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.Name, "name", o.Name, "Name of the new slice.")
	fs.StringVar(&o.ModelFile, "model-file", o.ModelFile, "File holding the requested topology graph model.")
	fs.StringSliceVar(&o.SSHKeyFiles, "sshkey-file", o.SSHKeyFiles, "File holding a public SSH key to install on the nodes. May be repeated.")
	fs.StringVar(&o.LeaseStartTime, "lease-start", o.LeaseStartTime, fmt.Sprintf("Lease start time in the format %q.", client.TimeFormat))
	fs.StringVar(&o.LeaseEndTime, "lease-end", o.LeaseEndTime, fmt.Sprintf("Lease end time in the format %q.", client.TimeFormat))
	fs.IntVar(&o.LifetimeHours, "lifetime", o.LifetimeHours, "Lease lifetime in hours. Zero takes the orchestrator default.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *SlicesCreateOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}
	if o.ModelFile == "" {
		return fmt.Errorf("a model file must be specified")
	}
	if len(o.SSHKeyFiles) == 0 {
		return fmt.Errorf("at least one ssh key file must be specified")
	}
	return nil
}

func (o *SlicesCreateOptions) Run(ctx context.Context, args []string) error {
	model, err := os.ReadFile(o.ModelFile)
	if err != nil {
		return fmt.Errorf("reading model file: %w", err)
	}
	keys := make([]string, 0, len(o.SSHKeyFiles))
	for _, path := range o.SSHKeyFiles {
		key, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading ssh key file: %w", err)
		}
		keys = append(keys, strings.TrimSpace(string(key)))
	}

	form := api.SliceCreateForm{
		Name:           o.Name,
		GraphModel:     string(model),
		SSHKeys:        keys,
		LeaseStartTime: o.LeaseStartTime,
		LeaseEndTime:   o.LeaseEndTime,
		LifetimeHours:  o.LifetimeHours,
	}
	v := validator.NewValidator()
	v.Register(validator.NewSliceValidationRules()...)
	if err := v.Struct(form); err != nil {
		return fmt.Errorf("validating slice request: %w", err)
	}

	token, err := o.identityToken(ctx)
	if err != nil {
		return err
	}

	slivers, err := o.Orchestrator().CreateSlice(ctx, token, client.CreateSliceRequest{
		Name:           form.Name,
		GraphModel:     form.GraphModel,
		SSHKeys:        form.SSHKeys,
		LeaseStartTime: form.LeaseStartTime,
		LeaseEndTime:   form.LeaseEndTime,
		LifetimeHours:  form.LifetimeHours,
	})
	if err != nil {
		return fmt.Errorf("creating slice: %w", err)
	}

	return printSlivers(slivers, o.Output)
}

type SlicesDeleteOptions struct {
	GlobalOptions

	All bool
}

func DefaultSlicesDeleteOptions() *SlicesDeleteOptions {
	return &SlicesDeleteOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdSlicesDelete() *cobra.Command {
	o := DefaultSlicesDeleteOptions()
	cmd := &cobra.Command{
		Use:   "delete [SLICE_ID]",
		Short: "Tear down a slice, or all slices with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *SlicesDeleteOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.BoolVar(&o.All, "all", o.All, "Delete every slice owned by the caller.")
}

func (o *SlicesDeleteOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(args) == 0 && !o.All {
		return fmt.Errorf("a slice id or --all must be specified")
	}
	if len(args) > 0 && o.All {
		return fmt.Errorf("a slice id and --all are mutually exclusive")
	}
	return nil
}

func (o *SlicesDeleteOptions) Run(ctx context.Context, args []string) error {
	token, err := o.identityToken(ctx)
	if err != nil {
		return err
	}

	sliceID := ""
	if len(args) > 0 {
		sliceID = args[0]
	}
	if err := o.Orchestrator().DeleteSlice(ctx, token, sliceID); err != nil {
		return fmt.Errorf("deleting slice: %w", err)
	}

	if sliceID == "" {
		fmt.Println("all slices deleted")
	} else {
		fmt.Printf("slice %s deleted\n", sliceID)
	}
	return nil
}

type SlicesRenewOptions struct {
	GlobalOptions

	LeaseEndTime string
}

func DefaultSlicesRenewOptions() *SlicesRenewOptions {
	return &SlicesRenewOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdSlicesRenew() *cobra.Command {
	o := DefaultSlicesRenewOptions()
	cmd := &cobra.Command{
		Use:   "renew SLICE_ID",
		Short: "Extend a slice lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *SlicesRenewOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVar(&o.LeaseEndTime, "lease-end", o.LeaseEndTime, fmt.Sprintf("New lease end time in the format %q.", client.TimeFormat))
}

func (o *SlicesRenewOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.LeaseEndTime == "" {
		return fmt.Errorf("a lease end time must be specified")
	}
	return nil
}

func (o *SlicesRenewOptions) Run(ctx context.Context, args []string) error {
	token, err := o.identityToken(ctx)
	if err != nil {
		return err
	}

	if err := o.Orchestrator().RenewSlice(ctx, token, args[0], o.LeaseEndTime); err != nil {
		return fmt.Errorf("renewing slice: %w", err)
	}

	fmt.Printf("slice %s renewed until %s\n", args[0], o.LeaseEndTime)
	return nil
}

func printSlices(slices []api.Slice, output string) error {
	switch output {
	case jsonFormat:
		marshalled, err := json.Marshal(slices)
		if err != nil {
			return fmt.Errorf("marshalling slices: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
	case yamlFormat:
		marshalled, err := yaml.Marshal(slices)
		if err != nil {
			return fmt.Errorf("marshalling slices: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
		fmt.Fprintln(w, "SLICE ID\tNAME\tSTATE\tLEASE END\tPROJECT")
		for _, s := range slices {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.SliceID, s.Name, s.State, s.LeaseEndTime, s.ProjectName)
		}
		w.Flush()
	}
	return nil
}

func printSlivers(slivers []api.Sliver, output string) error {
	switch output {
	case jsonFormat:
		marshalled, err := json.Marshal(slivers)
		if err != nil {
			return fmt.Errorf("marshalling slivers: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
	case yamlFormat:
		marshalled, err := yaml.Marshal(slivers)
		if err != nil {
			return fmt.Errorf("marshalling slivers: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
	default:
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 1, '\t', 0)
		fmt.Fprintln(w, "SLIVER ID\tTYPE\tSTATE\tNOTICE")
		for _, s := range slivers {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.SliverID, s.SliverType, s.State, s.Notice)
		}
		w.Flush()
	}
	return nil
}
