package cluster

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/telekom/proxmox-multicluster/pkg/metrics"
)

// Selection sources, in the order they are consulted.
const (
	SourceExplicit   = "explicit"
	SourcePattern    = "pattern"
	SourceConvention = "convention"
	SourceDefault    = "default"
)

// Selection is a selected cluster and the rule that selected it.
type Selection struct {
	Cluster string `json:"cluster" yaml:"cluster"`
	Source  string `json:"source" yaml:"source"`
}

// SelectCluster decides which cluster serves an operation:
//  1. an explicit cluster name, which must be configured
//  2. the prefix rules matching resourceName; several distinct targets are ambiguous
//  3. the naming convention <cluster>-..., when no rule matched
//  4. the default cluster
//
// vmid is accepted for callers that know it but does not influence the result.
// SelectCluster never touches the network.
func (r *Registry) SelectCluster(explicit, resourceName string, vmid *int) (string, error) {
	sel, err := r.Select(explicit, resourceName, vmid)
	if err != nil {
		return "", err
	}
	return sel.Cluster, nil
}

// Select is SelectCluster reporting which rule decided.
func (r *Registry) Select(explicit, resourceName string, _ *int) (Selection, error) {
	sel, err := r.selectCluster(explicit, resourceName)
	if err != nil {
		metrics.ClusterSelectionErrors.WithLabelValues(ErrorKind(err)).Inc()
		return Selection{}, err
	}
	metrics.ClusterSelections.WithLabelValues(sel.Cluster, sel.Source).Inc()
	r.log.Debugw("Cluster selected", "cluster", sel.Cluster, "source", sel.Source, "resource", resourceName)
	return sel, nil
}

func (r *Registry) selectCluster(explicit, resourceName string) (Selection, error) {
	if explicit != "" {
		if !r.cfg.HasCluster(explicit) {
			return Selection{}, r.notFound(explicit)
		}
		return Selection{Cluster: explicit, Source: SourceExplicit}, nil
	}

	if resourceName != "" {
		matched := r.matchPatterns(resourceName)
		switch len(matched) {
		case 0:
			if prefix, _, _ := strings.Cut(resourceName, "-"); r.cfg.HasCluster(prefix) {
				return Selection{Cluster: prefix, Source: SourceConvention}, nil
			}
		case 1:
			return Selection{Cluster: matched[0], Source: SourcePattern}, nil
		default:
			return Selection{}, &AmbiguousSelectionError{Resource: resourceName, Candidates: matched}
		}
	}

	return Selection{Cluster: r.cfg.DefaultCluster, Source: SourceDefault}, nil
}

// matchPatterns returns the distinct, sorted targets of every rule whose
// prefix starts resourceName.
func (r *Registry) matchPatterns(resourceName string) []string {
	var matched []string
	for _, rule := range r.cfg.Patterns {
		if strings.HasPrefix(resourceName, rule.Prefix) && !slices.Contains(matched, rule.Cluster) {
			matched = append(matched, rule.Cluster)
		}
	}
	slices.Sort(matched)
	return matched
}
