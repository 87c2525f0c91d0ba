package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	jitterbug "github.com/lthibault/jitterbug/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thoas/go-funk"

	"github.com/meshbed/testbed-manager/internal/query"
	"github.com/meshbed/testbed-manager/internal/service"
)

type ResourcesOptions struct {
	GlobalOptions

	FilterSpec string
	Limit      int
	Offset     int
	Output     string
	Watch      bool
	Interval   time.Duration
}

func DefaultResourcesOptions() *ResourcesOptions {
	return &ResourcesOptions{
		GlobalOptions: DefaultGlobalOptions(),

		Output:   tableFormat,
		Interval: 30 * time.Second,
	}
}

func NewCmdResources() *cobra.Command {
	o := DefaultResourcesOptions()
	cmd := &cobra.Command{
		Use:     "resources (sites | hosts | facility-ports | links)",
		Short:   "Display testbed resources.",
		Example: `  testbedctl resources sites --filter '{"cores_available": {"gte": 16}}' -o yaml`,
		Args:    cobra.ExactArgs(1),
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

func (o *ResourcesOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.FilterSpec, "filter", "f", o.FilterSpec, "Filter in the JSON mapping form.")
	fs.IntVarP(&o.Limit, "limit", "l", o.Limit, "Maximum number of records to print. Zero prints all.")
	fs.IntVar(&o.Offset, "offset", o.Offset, "Number of records to skip.")
	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.BoolVarP(&o.Watch, "watch", "w", o.Watch, "Re-run the query periodically.")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Re-query interval in watch mode.")
}

func (o *ResourcesOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *ResourcesOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	if !funk.Contains(resourceKinds, args[0]) {
		return fmt.Errorf("resource kind must be one of %s", strings.Join(resourceKinds, ", "))
	}

	if len(o.Output) > 0 && !funk.Contains(legalOutputTypes, o.Output) {
		return fmt.Errorf("output format must be one of %s", strings.Join(legalOutputTypes, ", "))
	}

	if o.FilterSpec != "" {
		if _, err := query.ParseSpec([]byte(o.FilterSpec)); err != nil {
			return fmt.Errorf("parsing filter: %w", err)
		}
	}

	if o.Limit < 0 || o.Offset < 0 {
		return fmt.Errorf("limit and offset must not be negative")
	}

	if o.Watch && o.Interval <= 0 {
		return fmt.Errorf("watch interval must be positive")
	}

	return nil
}

func (o *ResourcesOptions) Run(ctx context.Context, args []string) error {
	svc, err := o.TopologyService()
	if err != nil {
		return fmt.Errorf("creating topology service: %w", err)
	}

	kind := args[0]
	queryOpts := service.QueryOptions{Offset: o.Offset}
	if o.Limit > 0 {
		queryOpts.Limit = &o.Limit
	}
	if o.FilterSpec != "" {
		spec, err := query.ParseSpec([]byte(o.FilterSpec))
		if err != nil {
			return fmt.Errorf("parsing filter: %w", err)
		}
		queryOpts.Filter = spec
	}

	if !o.Watch {
		return o.queryOnce(ctx, svc, kind, queryOpts)
	}

	// Jitter spreads re-queries of concurrent watchers so they do not
	// hit the orchestrator in lockstep.
	ticker := jitterbug.New(o.Interval, &jitterbug.Norm{Stdev: 100 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	if err := o.queryOnce(ctx, svc, kind, queryOpts); err != nil {
		fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := o.queryOnce(ctx, svc, kind, queryOpts); err != nil {
				fmt.Fprintf(os.Stderr, "query failed: %v\n", err)
			}
		}
	}
}

func (o *ResourcesOptions) queryOnce(ctx context.Context, svc *service.TopologyService, kind string, opts service.QueryOptions) error {
	var (
		records []query.Record
		err     error
	)
	switch kind {
	case SiteKind:
		records, err = svc.QuerySites(ctx, opts)
	case HostKind:
		records, err = svc.QueryHosts(ctx, opts)
	case FacilityPortKind:
		records, err = svc.QueryFacilityPorts(ctx, opts)
	case LinkKind:
		records, err = svc.QueryLinks(ctx, opts)
	default:
		return fmt.Errorf("unknown resource kind %s", kind)
	}
	if err != nil {
		return err
	}
	return printRecords(kind, records, o.Output)
}
