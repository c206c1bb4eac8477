package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/setlist/internal/formatter"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/ordering"
	"github.com/desertthunder/setlist/internal/presentation"
	"github.com/desertthunder/setlist/internal/services"
	"github.com/desertthunder/setlist/internal/shared"
	"github.com/desertthunder/setlist/internal/tasks"
	"github.com/urfave/cli/v3"
)

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := cmd.StringArg(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	return v, nil
}

// ListsShow prints every draft and saved list of the current identity.
func (r *Runner) ListsShow(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.open(ctx)
	if err != nil {
		return err
	}

	lists := engine.Lists()
	if cmd.Bool("json") {
		return r.writeJSON(lists, cmd.Bool("pretty"))
	}

	scope := engine.Scope()
	r.writePlainHeader(fmt.Sprintf("Lists (%s)", scope))
	if len(lists) == 0 {
		return r.writePlain("No lists. Create one with 'setlist lists new <name>'.\n")
	}

	active := engine.ActiveID()
	for _, l := range lists {
		marker := " "
		if l.ID == active {
			marker = "*"
		}
		status := "saved"
		if engine.IsDraft(l.ID) {
			status = "draft"
		}
		r.writePlain("%s %-36s  %-24s  %2d items  %s\n", marker, l.ID, l.Name, l.Len(), status)
	}
	return nil
}

// ListsGet prints one list in running order.
func (r *Runner) ListsGet(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	l, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(l, cmd.Bool("pretty"))
	}

	data, err := formatter.ExportToText(l)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

// ListsNew creates a draft.
func (r *Runner) ListsNew(ctx context.Context, cmd *cli.Command) error {
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}
	engine, err := r.open(ctx)
	if err != nil {
		return err
	}

	l, err := engine.Create(name)
	if err != nil {
		return err
	}

	if cmd.Bool("save") {
		id, err := engine.Promote(ctx, l.ID)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Created list %s (%s)\n", l.Name, id)
	}
	return r.writePlain("✓ Created draft %s (%s)\n", l.Name, l.ID)
}

// ListsRename renames a draft or saved list.
func (r *Runner) ListsRename(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	name, err := requireArg(cmd, "name")
	if err != nil {
		return err
	}

	if _, err := r.get(ctx, id); err != nil {
		return err
	}
	if err := r.engine.Rename(id, name); err != nil {
		return err
	}
	return r.writePlain("✓ Renamed %s to %s\n", id, name)
}

// ListsAdd resolves a song or card from the catalog and inserts it.
//
// Without --at the item is appended.
func (r *Runner) ListsAdd(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}
	kind, err := models.ParseItemKind(cmd.String("kind"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	l, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	order := int(cmd.Int("at"))
	if order <= 0 {
		order = l.Len() + 1
	}

	item, err := services.ResolveItem(ctx, r.backend, kind, itemID, order)
	if err != nil {
		return err
	}
	if err := r.engine.AddItem(id, item, order); err != nil {
		return err
	}
	return r.writePlain("✓ Added %s %q to %s\n", kind, item.Title(), l.Name)
}

// ListsRemove removes an item from a list.
func (r *Runner) ListsRemove(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	itemID, err := requireArg(cmd, "item")
	if err != nil {
		return err
	}

	l, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if !ordering.Contains(l.Songs, l.Cards, itemID) {
		return fmt.Errorf("%w: %s is not in %s", shared.ErrInvalidArgument, itemID, l.Name)
	}
	if err := r.engine.RemoveItem(id, itemID); err != nil {
		return err
	}
	return r.writePlain("✓ Removed %s from %s\n", itemID, l.Name)
}

// ListsReorder sets the running order from --order, or moves one item with --move and --by.
//
// Items left out of --order are removed from the list.
func (r *Runner) ListsReorder(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	l, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	current := ordering.CombineAndSort(l.Songs, l.Cards)

	ids := cmd.StringSlice("order")
	if move := cmd.String("move"); move != "" {
		if !ordering.Contains(l.Songs, l.Cards, move) {
			return fmt.Errorf("%w: %s is not in %s", shared.ErrInvalidArgument, move, l.Name)
		}
		ids = ordering.Move(current, move, int(cmd.Int("by")))
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: --order or --move", shared.ErrMissingArgument)
	}

	if err := r.engine.Reorder(id, ids); err != nil {
		return err
	}

	for _, itemID := range ordering.IDs(current) {
		if !slices.Contains(ids, itemID) {
			r.writePlain("! Removed %s (not in the new order)\n", itemID)
		}
	}

	updated, _ := r.engine.Get(id)
	data, err := formatter.ExportToText(updated)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

// ListsPromote saves a draft to the remote store.
func (r *Runner) ListsPromote(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	engine, err := r.open(ctx)
	if err != nil {
		return err
	}

	newID, err := engine.Promote(ctx, id)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Saved draft %s as %s\n", id, newID)
}

// ListsDelete deletes a draft or saved list.
func (r *Runner) ListsDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	engine, err := r.open(ctx)
	if err != nil {
		return err
	}

	if err := engine.Delete(ctx, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted %s\n", id)
}

// ListsExport writes a list to a file as CSV, Markdown, text or JSON.
func (r *Runner) ListsExport(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	l, err := r.get(ctx, id)
	if err != nil {
		return err
	}

	path, err := formatter.WriteExport(l, format, cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("list exported", "id", id, "format", format, "path", path)
	return r.writePlain("✓ Exported %s to %s\n", l.Name, path)
}

// ListsExportAll writes every list (or those named by --id) to its own file with a manifest.
func (r *Runner) ListsExportAll(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	engine, err := r.open(ctx)
	if err != nil {
		return err
	}

	opts := tasks.ExportOpts{
		Format:      format,
		OutputDir:   cmd.String("dir"),
		NumWorkers:  int(cmd.Int("workers")),
		RateLimit:   r.config.Remote.RateLimit,
		SkipDrafts:  cmd.Bool("saved-only"),
		SkipRefresh: cmd.Bool("no-refresh"),
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchLists:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.ExportList:
				r.writePlain("   %s\n", update.Message)
			}
		}
	}()

	result, err := tasks.NewExporter(r.backend, r.logger).Export(ctx, progressCh, engine, cmd.StringSlice("id"), opts)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	r.writePlain("\nExported %d/%d lists to %s\n", result.SuccessfulExports, result.TotalLists, result.OutputDirectory)
	for _, res := range result.Results {
		if len(res.Stale) > 0 {
			r.writePlain("! %s has items missing from the catalog: %s\n", res.ListName, strings.Join(res.Stale, ", "))
		}
	}
	r.writePlain("Manifest: %s\n", result.ManifestPath)

	if result.FailedExports > 0 {
		return fmt.Errorf("%d of %d lists failed to export", result.FailedExports, result.TotalLists)
	}
	return nil
}

// ListsWatch prints engine events until interrupted, following remote changes when a server is configured.
func (r *Runner) ListsWatch(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.open(ctx)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	events := engine.Subscribe()
	r.follow(ctx)
	r.writePlain("Watching lists of %s (ctrl+c to stop)\n", engine.Scope())

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.writeEvent(ev)
		}
	}
}

func (r *Runner) writeEvent(ev presentation.Event) {
	switch ev.Kind {
	case presentation.ListsChanged:
		r.writePlain("%-16s %d lists\n", ev.Kind, len(r.engine.Lists()))
	case presentation.FlushFailed:
		r.writePlain("%-16s %s: %v\n", ev.Kind, ev.ListID, ev.Err)
	default:
		r.writePlain("%-16s %s %s\n", ev.Kind, ev.ListID, ev.Message)
	}
}

// get opens the engine and looks up a list.
func (r *Runner) get(ctx context.Context, id string) (models.List, error) {
	engine, err := r.open(ctx)
	if err != nil {
		return models.List{}, err
	}
	l, ok := engine.Get(id)
	if !ok {
		return models.List{}, fmt.Errorf("%w: %s", shared.ErrListNotFound, id)
	}
	return l, nil
}
