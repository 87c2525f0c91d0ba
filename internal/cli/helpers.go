package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"sigs.k8s.io/yaml"

	"github.com/meshbed/testbed-manager/internal/query"
)

const (
	SiteKind         = "sites"
	HostKind         = "hosts"
	FacilityPortKind = "facility-ports"
	LinkKind         = "links"
)

const (
	tableFormat = "table"
	jsonFormat  = "json"
	yamlFormat  = "yaml"
)

var (
	resourceKinds    = []string{SiteKind, HostKind, FacilityPortKind, LinkKind}
	legalOutputTypes = []string{tableFormat, jsonFormat, yamlFormat}
)

func printRecords(kind string, records []query.Record, output string) error {
	switch output {
	case jsonFormat:
		marshalled, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("marshalling records: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
		return nil
	case yamlFormat:
		marshalled, err := yaml.Marshal(records)
		if err != nil {
			return fmt.Errorf("marshalling records: %w", err)
		}
		fmt.Printf("%s\n", string(marshalled))
		return nil
	default:
		return printTable(os.Stdout, kind, records)
	}
}

func printTable(out *os.File, kind string, records []query.Record) error {
	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	switch kind {
	case SiteKind:
		printSitesTable(w, records)
	case HostKind:
		printHostsTable(w, records)
	case FacilityPortKind:
		printFacilityPortsTable(w, records)
	case LinkKind:
		printLinksTable(w, records)
	default:
		return fmt.Errorf("unknown resource kind %s", kind)
	}
	w.Flush()
	return nil
}

func printSitesTable(w *tabwriter.Writer, records []query.Record) {
	fmt.Fprintln(w, "NAME\tSTATE\tHOSTS\tCORES\tRAM(G)\tDISK(G)")
	for _, r := range records {
		fmt.Fprintf(w, "%v\t%v\t%d\t%v/%v\t%v/%v\t%v/%v\n",
			r["name"], r["state"], lenOf(r["hosts"]),
			r["cores_available"], r["cores_capacity"],
			r["ram_available"], r["ram_capacity"],
			r["disk_available"], r["disk_capacity"])
	}
}

func printHostsTable(w *tabwriter.Writer, records []query.Record) {
	fmt.Fprintln(w, "NAME\tSITE\tCORES\tRAM(G)\tDISK(G)")
	for _, r := range records {
		fmt.Fprintf(w, "%v\t%v\t%v/%v\t%v/%v\t%v/%v\n",
			r["name"], r["site"],
			r["cores_available"], r["cores_capacity"],
			r["ram_available"], r["ram_capacity"],
			r["disk_available"], r["disk_capacity"])
	}
}

func printFacilityPortsTable(w *tabwriter.Writer, records []query.Record) {
	fmt.Fprintln(w, "NAME\tSITE\tPORT\tSWITCH\tVLANS")
	for _, r := range records {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n",
			r["name"], r["site"], r["port"], r["switch"], joinAny(r["vlans"]))
	}
}

func printLinksTable(w *tabwriter.Writer, records []query.Record) {
	fmt.Fprintln(w, "NAME\tLAYER\tBANDWIDTH\tENDPOINTS")
	for _, r := range records {
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\n",
			r["name"], r["layer"], r["bandwidth"], formatEndpoints(r["endpoints"]))
	}
}

func lenOf(v any) int {
	items, ok := v.([]any)
	if !ok {
		return 0
	}
	return len(items)
}

func joinAny(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%v", item))
	}
	return strings.Join(parts, ",")
}

// formatEndpoints renders link endpoints as site:port pairs.
func formatEndpoints(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		endpoint, ok := item.(map[string]any)
		if !ok {
			continue
		}
		site := endpoint["site"]
		if site == nil || site == "" {
			site = "?"
		}
		port := endpoint["port"]
		if port == nil || port == "" {
			port = "?"
		}
		parts = append(parts, fmt.Sprintf("%v:%v", site, port))
	}
	return strings.Join(parts, " -- ")
}
