package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cobiv/internal/database"
	"cobiv/internal/media"
	"cobiv/internal/mediatypes"
	"cobiv/internal/session"
)

func (r *Registry) registerBuiltins() {
	for _, cmd := range []Command{
		{"search", "search [criterion...]", "Filter the catalog into the working set", r.search},
		{"sort", "sort field...", "Sort the working set", r.sort},
		{"load-set", "load-set name", "Load a named set into the working set", r.loadSet},
		{"save-set", "save-set name", "Save the working set as a named set", r.saveSet},
		{"add-tag", "add-tag [kind:]value...", "Tag the current file", r.addTag},
		{"rm-tag", "rm-tag [kind:]value...", "Untag the current file", r.removeTag},
		{"ls-tag", "ls-tag", "List the current file's tags", r.listTags},
		{"updatedb", "updatedb", "Synchronize the catalog with the repositories", r.updateDB},
		{"cancel-updatedb", "cancel-updatedb", "Stop a running synchronization", r.cancelUpdateDB},
		{"mark", "mark [bool]", "Set or toggle the current file's mark", r.mark},
		{"mark-all", "mark-all [bool]", "Set or toggle the marks of the working set", r.markAll},
		{"mark-invert", "mark-invert", "Invert the marks of the working set", r.markInvert},
		{"ls-marked", "ls-marked", "List marked file keys", r.listMarked},
		{"next", "next", "Move to the next file", r.move((*session.Cursor).Next)},
		{"previous", "previous", "Move to the previous file", r.move((*session.Cursor).Previous)},
		{"first", "first", "Move to the first file", r.move((*session.Cursor).First)},
		{"last", "last", "Move to the last file", r.move((*session.Cursor).Last)},
		{"go", "go position", "Move to a position", r.goTo},
		{"remove", "remove", "Remove the current file from the working set", r.remove},
		{"move", "move position", "Move the current file to a position", r.moveTo},
		{"page", "page [n]", "List the next files and queue their thumbnails", r.page},
		{"thumbnail", "thumbnail", "Print the current file's thumbnail path", r.thumbnail},
		{"info", "info", "Describe the current file", r.info},
		{"help", "help", "List commands", r.help},
	} {
		r.Register(cmd)
	}
}

func (r *Registry) search(ctx context.Context, args []string) error {
	n, err := r.sess.Search(ctx, args...)
	if err != nil {
		return err
	}
	r.out.Notify(fmt.Sprintf("%d files", n))
	return nil
}

func (r *Registry) sort(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("sort field...")
	}
	n, err := r.sess.Sort(ctx, args...)
	if err != nil {
		return err
	}
	r.out.Notify(fmt.Sprintf("%d files", n))
	return nil
}

func (r *Registry) loadSet(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("load-set name")
	}
	n, err := r.sess.LoadSet(ctx, args[0])
	if err != nil {
		return err
	}
	r.out.Notify(fmt.Sprintf("%d files", n))
	return nil
}

func (r *Registry) saveSet(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("save-set name")
	}
	n, err := r.sess.SaveSet(ctx, args[0])
	if err != nil {
		return err
	}
	r.out.Notify(fmt.Sprintf("saved %d files as %s", n, args[0]))
	return nil
}

func (r *Registry) addTag(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	_, err := r.sess.AddTags(ctx, args...)
	return err
}

func (r *Registry) removeTag(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	_, err := r.sess.RemoveTags(ctx, args...)
	return err
}

func (r *Registry) listTags(ctx context.Context, _ []string) error {
	if r.sess.Cursor().FileKey() == 0 {
		return nil
	}
	text, err := r.sess.ListTags(ctx)
	if err != nil {
		return err
	}
	r.out.Notify(text)
	return nil
}

func (r *Registry) updateDB(ctx context.Context, _ []string) error {
	if err := r.sess.UpdateDB(ctx); err != nil {
		return err
	}
	r.out.Notify("catalog update started")
	return nil
}

func (r *Registry) cancelUpdateDB(context.Context, []string) error {
	r.sess.CancelUpdateDB()
	return nil
}

func (r *Registry) mark(ctx context.Context, args []string) error {
	value, err := parseBool(args)
	if err != nil {
		return usage("mark [bool]")
	}
	if r.sess.Cursor().FileKey() == 0 {
		return nil
	}

	marked, err := r.sess.Cursor().Mark(ctx, value)
	if err != nil {
		return err
	}
	r.out.Notify(markText(marked))
	return nil
}

func (r *Registry) markAll(ctx context.Context, args []string) error {
	value, err := parseBool(args)
	if err != nil {
		return usage("mark-all [bool]")
	}

	marked, err := r.sess.MarkAll(ctx, value)
	if err != nil {
		return err
	}
	r.out.Notify("all " + markText(marked))
	return nil
}

func markText(marked bool) string {
	if marked {
		return "marked"
	}
	return "unmarked"
}

func (r *Registry) markInvert(ctx context.Context, _ []string) error {
	return r.sess.InvertMarks(ctx)
}

func (r *Registry) listMarked(ctx context.Context, _ []string) error {
	keys, err := r.sess.Cursor().AllMarked(ctx)
	if err != nil {
		return err
	}

	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = strconv.FormatInt(k, 10)
	}
	r.out.Notify(strings.Join(ids, "\n"))
	return nil
}

// move adapts a cursor step into a command reporting the new position.
func (r *Registry) move(step func(*session.Cursor, context.Context) (bool, error)) Func {
	return func(ctx context.Context, _ []string) error {
		moved, err := step(r.sess.Cursor(), ctx)
		if err != nil || !moved {
			return err
		}
		r.notifyPosition()
		return nil
	}
}

func (r *Registry) notifyPosition() {
	c := r.sess.Cursor()
	if pos, ok := c.Position(); ok {
		r.out.Notify(fmt.Sprintf("%d: %s", pos, c.Name()))
	}
}

func (r *Registry) goTo(ctx context.Context, args []string) error {
	pos, err := position(args, "go position")
	if err != nil {
		return err
	}
	moved, err := r.sess.Cursor().Go(ctx, pos)
	if err != nil || !moved {
		return err
	}
	r.notifyPosition()
	return nil
}

func (r *Registry) remove(ctx context.Context, _ []string) error {
	removed, err := r.sess.Cursor().Remove(ctx)
	if err != nil || !removed {
		return err
	}
	r.notifyPosition()
	return nil
}

func (r *Registry) moveTo(ctx context.Context, args []string) error {
	pos, err := position(args, "move position")
	if err != nil {
		return err
	}
	moved, err := r.sess.Cursor().MoveTo(ctx, pos)
	if err != nil || !moved {
		return err
	}
	r.notifyPosition()
	return nil
}

func position(args []string, form string) (int, error) {
	if len(args) != 1 {
		return 0, usage(form)
	}
	pos, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, usage(form)
	}
	return pos, nil
}

func (r *Registry) page(ctx context.Context, args []string) error {
	n := DefaultPageSize
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return usage("page [n]")
		}
		n = v
	}

	entries, err := r.sess.Page(ctx, n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	r.out.Notify(formatEntries(entries))
	return nil
}

func formatEntries(entries []database.SetEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		mark := " "
		if e.Marked {
			mark = "*"
		}
		fmt.Fprintf(&b, "%s %d: %s", mark, e.Position, e.Name)
	}
	return b.String()
}

func (r *Registry) thumbnail(context.Context, []string) error {
	if path := r.sess.Cursor().ThumbnailPath(); path != "" {
		r.out.Notify(path)
	}
	return nil
}

func (r *Registry) info(context.Context, []string) error {
	c := r.sess.Cursor()
	if _, ok := c.Position(); !ok {
		return nil
	}

	lines := []string{
		"name: " + c.Name(),
		"size: " + c.Field("size"),
		"type: " + mediatypes.GetMimeType(c.Field("ext")),
	}
	// Files missing from disk keep their catalog entry until the next sync.
	if dim, err := media.GetImageDimensions(c.Name()); err == nil {
		lines = append(lines, fmt.Sprintf("dimensions: %dx%d", dim.Width, dim.Height))
	}
	r.out.Notify(strings.Join(lines, "\n"))
	return nil
}

func (r *Registry) help(context.Context, []string) error {
	var b strings.Builder
	for i, name := range r.Names() {
		if i > 0 {
			b.WriteByte('\n')
		}
		cmd := r.cmds[name]
		fmt.Fprintf(&b, "%-28s %s", cmd.Usage, cmd.Summary)
	}
	r.out.Notify(b.String())
	return nil
}
