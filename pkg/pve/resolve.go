package pve

import (
	"fmt"
	"strconv"
	"strings"
)

// FilterResources keeps the guests of kind that match opts, in input order.
func FilterResources(all []Resource, kind string, opts ListOptions) []Resource {
	search := strings.ToLower(opts.Search)
	out := make([]Resource, 0, len(all))
	for _, r := range all {
		if r.Type != kind {
			continue
		}
		if opts.Node != "" && r.Node != opts.Node {
			continue
		}
		if opts.Status != "" && !strings.EqualFold(r.Status, opts.Status) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(r.Name), search) && !strings.Contains(strconv.Itoa(r.VMID), search) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Resolve finds exactly one guest of kind by VMID or, failing that, by exact name.
func Resolve(all []Resource, kind string, q ResolveQuery) (*ResolvedResource, error) {
	if q.VMID == nil && q.Name == "" {
		return nil, fmt.Errorf("%w: vmid or name is required", ErrInvalidArgument)
	}
	candidates := FilterResources(all, kind, ListOptions{Node: q.Node})

	if q.VMID != nil {
		for _, r := range candidates {
			if r.VMID == *q.VMID {
				return &ResolvedResource{VMID: r.VMID, Node: r.Node, Resource: r}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s %d", ErrResourceNotFound, kind, *q.VMID)
	}

	var matches []Resource
	for _, r := range candidates {
		if r.Name == q.Name {
			matches = append(matches, r)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s named %q", ErrResourceNotFound, kind, q.Name)
	case 1:
		r := matches[0]
		return &ResolvedResource{VMID: r.VMID, Node: r.Node, Resource: r}, nil
	default:
		ids := make([]string, 0, len(matches))
		for _, r := range matches {
			ids = append(ids, fmt.Sprintf("%d@%s", r.VMID, r.Node))
		}
		return nil, fmt.Errorf("%w: %s named %q matches %s", ErrAmbiguousResource, kind, q.Name, strings.Join(ids, ", "))
	}
}
