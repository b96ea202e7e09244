package output

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/telekom/proxmox-multicluster/pkg/cluster"
	"github.com/telekom/proxmox-multicluster/pkg/pve"
)

// ClusterRow is one line of the cluster listing.
type ClusterRow struct {
	Name    string `json:"name" yaml:"name"`
	APIURL  string `json:"apiURL" yaml:"apiURL"`
	Default bool   `json:"default" yaml:"default"`
	Region  string `json:"region,omitempty" yaml:"region,omitempty"`
	Tier    string `json:"tier,omitempty" yaml:"tier,omitempty"`
}

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
}

func WriteClusterTable(w io.Writer, rows []ClusterRow) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "NAME\tAPI URL\tDEFAULT\tREGION\tTIER")
	for _, r := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.APIURL, yesNo(r.Default), dash(r.Region), dash(r.Tier))
	}
	_ = tw.Flush()
}

func WriteClusterInfoTable(w io.Writer, infos []cluster.ClusterInfo) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "NAME\tSTATUS\tNODES\tVMS\tLXC\tSTORAGE\tERROR")
	for _, i := range infos {
		if i.Status == cluster.StatusOffline {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t%s\n", i.Name, i.Status, dash(i.ErrorKind))
			continue
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t-\n", i.Name, i.Status, i.NodesCount, i.VMsCount, i.LXCCount, i.StorageCount)
	}
	_ = tw.Flush()
}

// WriteValidationTable prints results sorted by cluster name.
func WriteValidationTable(w io.Writer, results map[string]cluster.ValidationResult) {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "CLUSTER\tHEALTHY\tKIND\tMESSAGE")
	for _, name := range names {
		r := results[name]
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, yesNo(r.Healthy), dash(r.ErrorKind), r.Message)
	}
	_ = tw.Flush()
}

func WriteSelectionTable(w io.Writer, sel cluster.Selection) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "CLUSTER\tSOURCE")
	_, _ = fmt.Fprintf(tw, "%s\t%s\n", sel.Cluster, sel.Source)
	_ = tw.Flush()
}

func WriteNodeTable(w io.Writer, nodes []pve.Node) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "NODE\tSTATUS\tCPU\tMEMORY\tUPTIME")
	for _, n := range nodes {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.Node, n.Status, percent(n.CPU), memory(n.Mem, n.MaxMem), uptime(n.Uptime))
	}
	_ = tw.Flush()
}

func WriteResourceTable(w io.Writer, resources []pve.Resource) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "VMID\tNAME\tNODE\tSTATUS")
	for _, r := range resources {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.VMID, r.Name, r.Node, r.Status)
	}
	_ = tw.Flush()
}

func WriteResourceTableWide(w io.Writer, resources []pve.Resource) {
	tw := newTabWriter(w)
	_, _ = fmt.Fprintln(tw, "VMID\tNAME\tNODE\tSTATUS\tCPU\tMEMORY\tUPTIME\tTAGS")
	for _, r := range resources {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.VMID, r.Name, r.Node, r.Status,
			percent(r.CPU), memory(r.Mem, r.MaxMem), uptime(r.Uptime), dash(r.Tags))
	}
	_ = tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func percent(f float64) string {
	return strconv.FormatFloat(f*100, 'f', 1, 64) + "%"
}

func memory(used, total int64) string {
	if total <= 0 {
		return "-"
	}
	const mib = 1 << 20
	return fmt.Sprintf("%d/%d MiB", used/mib, total/mib)
}

func uptime(seconds int64) string {
	if seconds <= 0 {
		return "-"
	}
	d := seconds / 86400
	h := (seconds % 86400) / 3600
	m := (seconds % 3600) / 60
	if d > 0 {
		return fmt.Sprintf("%dd%dh", d, h)
	}
	return fmt.Sprintf("%dh%dm", h, m)
}
