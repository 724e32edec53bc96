package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/hibiken/asynq"

	"github.com/counsel-pm/counsel/internal/rbac"
	"github.com/counsel-pm/counsel/internal/shared"
)

// CatalogOptions configures the catalog commands.
type CatalogOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *CatalogOptions) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// CatalogListing is the JSON output of catalog list.
type CatalogListing struct {
	Version     int             `json:"version"`
	Permissions []CatalogEntry  `json:"permissions"`
	Actions     []CatalogAction `json:"actions"`
}

// CatalogEntry is one permission with its area.
type CatalogEntry struct {
	ID   string `json:"id"`
	Area string `json:"area"`
}

// CatalogAction is one guarded action.
type CatalogAction struct {
	ID    string   `json:"id"`
	Scope string   `json:"scope"`
	AnyOf []string `json:"any_of"`
}

// BuildCatalogListing describes catalog and actions.
func BuildCatalogListing(catalog *rbac.Catalog, actions *rbac.ActionRegistry) CatalogListing {
	areas := make(map[string]string)
	for _, id := range shared.CoreScopes() {
		areas[id] = "core"
	}
	for _, id := range shared.PracticeScopes() {
		areas[id] = "practice"
	}
	out := CatalogListing{Version: catalog.Version()}
	for _, p := range catalog.All() {
		out.Permissions = append(out.Permissions, CatalogEntry{ID: string(p), Area: areas[string(p)]})
	}
	if actions != nil {
		for _, a := range actions.All() {
			anyOf := make([]string, len(a.AnyOf))
			for i, p := range a.AnyOf {
				anyOf[i] = string(p)
			}
			out.Actions = append(out.Actions, CatalogAction{ID: a.ID, Scope: a.Scope.String(), AnyOf: anyOf})
		}
	}
	return out
}

// ListCatalogCommand prints the shipped catalog and action table.
func ListCatalogCommand(catalog *rbac.Catalog, actions *rbac.ActionRegistry, opts CatalogOptions) int {
	opts.defaults()
	listing := BuildCatalogListing(catalog, actions)
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(listing); err != nil {
			fmt.Fprintf(opts.Stderr, "catalog list: %v\n", err)
			return 1
		}
		return 0
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "catalog version %d\n\n", listing.Version)
	fmt.Fprintln(tw, "PERMISSION\tAREA")
	for _, p := range listing.Permissions {
		fmt.Fprintf(tw, "%s\t%s\n", p.ID, p.Area)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ACTION\tSCOPE\tANY OF")
	for _, a := range listing.Actions {
		fmt.Fprintf(tw, "%s\t%s\t%v\n", a.ID, a.Scope, a.AnyOf)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(opts.Stderr, "catalog list: %v\n", err)
		return 1
	}
	return 0
}

// CatalogSyncer enqueues catalog sync tasks.
type CatalogSyncer interface {
	SyncCatalog(ctx context.Context, version int) (*asynq.TaskInfo, error)
}

// SyncCatalogCommand enqueues a catalog sync for version.
func SyncCatalogCommand(ctx context.Context, syncer CatalogSyncer, version int, opts CatalogOptions) int {
	opts.defaults()
	info, err := syncer.SyncCatalog(ctx, version)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			fmt.Fprintf(opts.Stdout, "catalog sync for version %d already queued\n", version)
			return 0
		}
		fmt.Fprintf(opts.Stderr, "catalog sync: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		_ = json.NewEncoder(opts.Stdout).Encode(map[string]any{"task_id": info.ID, "queue": info.Queue, "version": version})
		return 0
	}
	fmt.Fprintf(opts.Stdout, "enqueued catalog sync %s on queue %s (version %d)\n", info.ID, info.Queue, version)
	return 0
}
