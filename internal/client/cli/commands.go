package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/client/client"
	"github.com/dmitrijs2005/teamsync/internal/client/optimistic"
	"github.com/dmitrijs2005/teamsync/internal/client/services"
	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/models"
)

const dateLayout = "2006-01-02"

var errUsage = errors.New("bad usage")

func (a *App) Login(ctx context.Context) error {
	token, err := GetToken(a.out)
	if err != nil {
		a.report("error", err)
		return err
	}
	if token == "" {
		fmt.Fprintln(a.out, "Empty token")
		return errUsage
	}

	id, err := a.ws.Login(ctx, token)
	if err != nil {
		switch {
		case client.IsConnectivity(err):
			fmt.Fprintln(a.out, "Server unavailable, try again when online")
		case errors.Is(err, client.ErrUnauthorized):
			fmt.Fprintln(a.out, "Login unsuccessful: token rejected")
		default:
			a.report("Login unsuccessful", err)
		}
		return err
	}

	a.setLoggedIn(true)
	fmt.Fprintf(a.out, "Logged in as %s\n", id.DisplayName)

	if err := a.ws.Refresh(ctx); err != nil {
		a.logger.Debug(ctx, "refresh after login failed", "error", err)
	}
	if err := a.ws.RefreshColumns(ctx); err != nil {
		a.logger.Debug(ctx, "columns refresh after login failed", "error", err)
	}
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.ws.Logout(ctx); err != nil {
		a.report("Logout failed", err)
		return err
	}
	a.setLoggedIn(false)
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

func (a *App) List(ctx context.Context) error {
	rows, err := a.ws.Rows(ctx)
	if err != nil {
		a.report("error", err)
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(a.out, "No rows")
		return nil
	}
	writeRows(a.out, rows, a.marker(ctx))
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	id, err := a.argID(args, "show <id>")
	if err != nil {
		return err
	}
	row, ok := a.ws.Row(id)
	if !ok {
		fmt.Fprintf(a.out, "Row %s not found\n", id)
		return common.ErrNotFound
	}
	writeRow(a.out, row, a.marker(ctx)(row.ID))
	return nil
}

func (a *App) Create(ctx context.Context) error {
	d, err := GetSimpleText(a.reader, "Date (YYYY-MM-DD, empty for today)", a.out)
	if err != nil {
		a.report("error", err)
		return err
	}
	date := time.Now().UTC().Truncate(24 * time.Hour)
	if d != "" {
		if date, err = time.Parse(dateLayout, d); err != nil {
			fmt.Fprintf(a.out, "Invalid date %q\n", d)
			return err
		}
	}

	lines, err := GetFields(a.reader, "Enter fields", a.out)
	if err != nil {
		a.report("error", err)
		return err
	}
	fields, err := parseFields(lines)
	if err != nil {
		a.report("error", err)
		return err
	}

	row, err := a.ws.Create(ctx, models.Row{Fields: fields, Date: date})
	if err != nil {
		if errors.Is(err, services.ErrNeedsConnection) {
			fmt.Fprintln(a.out, "Creating rows needs a server connection")
		} else {
			a.report("Create failed", err)
		}
		return err
	}
	fmt.Fprintf(a.out, "Created row %s\n", row.ID)
	return nil
}

func (a *App) Edit(ctx context.Context, args []string) error {
	id, err := a.argID(args, "edit <id>")
	if err != nil {
		return err
	}
	if !a.ensureLock(ctx, id) {
		return common.ErrLockHeld
	}

	lines, err := GetFields(a.reader, "Enter changed fields (name= removes a field)", a.out)
	if err != nil {
		a.report("error", err)
		return err
	}
	fields, err := parseFields(lines)
	if err != nil {
		a.report("error", err)
		return err
	}
	return a.apply(a.ws.Edit(ctx, id, models.RowPatch{Fields: fields}))
}

func (a *App) SetDate(ctx context.Context, args []string) error {
	if len(args) < 2 {
		fmt.Fprintln(a.out, "Usage: date <id> <YYYY-MM-DD>")
		return errUsage
	}
	date, err := time.Parse(dateLayout, args[1])
	if err != nil {
		fmt.Fprintf(a.out, "Invalid date %q\n", args[1])
		return err
	}
	if !a.ensureLock(ctx, args[0]) {
		return common.ErrLockHeld
	}
	return a.apply(a.ws.Edit(ctx, args[0], models.RowPatch{Date: &date}))
}

func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := a.argID(args, "delete <id>")
	if err != nil {
		return err
	}
	if h, ok := a.ws.LockHolder(id); ok && h.ID != a.ws.Me().UserID {
		fmt.Fprintf(a.out, "Locked by %s\n", h.Name)
		return common.ErrLockHeld
	}
	return a.apply(a.ws.Delete(ctx, id))
}

func (a *App) Lock(ctx context.Context, args []string) error {
	id, err := a.argID(args, "lock <id>")
	if err != nil {
		return err
	}
	res, err := a.ws.Lock(ctx, id)
	if err != nil {
		a.report("Lock failed", err)
		return err
	}
	if !res.Granted {
		fmt.Fprintf(a.out, "Locked by %s\n", holderName(res.HeldBy))
		return common.ErrLockHeld
	}
	fmt.Fprintf(a.out, "You are editing row %s\n", id)
	return nil
}

func (a *App) Unlock(ctx context.Context, args []string) error {
	id, err := a.argID(args, "unlock <id>")
	if err != nil {
		return err
	}
	if err := a.ws.Unlock(ctx, id); err != nil {
		a.report("Unlock failed", err)
		return err
	}
	fmt.Fprintf(a.out, "Released row %s\n", id)
	return nil
}

func (a *App) Drafts(ctx context.Context) error {
	drafts, err := a.ws.Drafts(ctx)
	if err != nil {
		a.report("error", err)
		return err
	}
	if len(drafts) == 0 {
		fmt.Fprintln(a.out, "No offline changes")
		return nil
	}
	writeDrafts(a.out, drafts)
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	rep, err := a.ws.Sync(ctx)
	if err != nil {
		a.report("Sync failed", err)
		return err
	}
	fmt.Fprintf(a.out, "Sent %d, dropped %d, kept %d\n", rep.Sent, rep.Dropped, rep.Kept)
	return nil
}

// Filter with no arguments prints the active filters; "clear" removes
// them all and "name=" removes one.
func (a *App) Filter(ctx context.Context, args []string) error {
	if len(args) == 0 {
		f, err := a.ws.Filters(ctx)
		if err != nil {
			a.report("error", err)
			return err
		}
		if len(f) == 0 {
			fmt.Fprintln(a.out, "No filters")
			return nil
		}
		for _, s := range f {
			fmt.Fprintln(a.out, s)
		}
		return nil
	}

	if args[0] == "clear" {
		if err := a.ws.ClearFilters(ctx); err != nil {
			a.report("error", err)
			return err
		}
		fmt.Fprintln(a.out, "Filters cleared")
		return nil
	}

	key, value, ok := strings.Cut(strings.Join(args, " "), "=")
	if !ok || strings.TrimSpace(key) == "" {
		fmt.Fprintln(a.out, "Usage: filter [name=value | name= | clear]")
		return errUsage
	}
	if err := a.ws.SetFilter(ctx, strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
		a.report("error", err)
		return err
	}
	return nil
}

func (a *App) Sort(ctx context.Context, args []string) error {
	if len(args) != 1 || (args[0] != "asc" && args[0] != "desc") {
		fmt.Fprintln(a.out, "Usage: sort asc|desc")
		return errUsage
	}
	if err := a.ws.SetSort(ctx, args[0] == "desc"); err != nil {
		a.report("error", err)
		return err
	}
	return nil
}

func (a *App) Columns(ctx context.Context) error {
	if err := a.ws.RefreshColumns(ctx); err != nil && !client.IsConnectivity(err) {
		a.report("error", err)
		return err
	}
	cols := a.ws.Columns()
	if len(cols) == 0 {
		fmt.Fprintln(a.out, "No columns")
		return nil
	}
	writeColumns(a.out, cols)
	return nil
}

func (a *App) Import(ctx context.Context, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: import <file.csv>")
		return errUsage
	}
	f, err := os.Open(args[0])
	if err != nil {
		a.report("error", err)
		return err
	}
	defer f.Close()

	res, err := a.ws.Import(ctx, f)
	if err != nil {
		a.report("Import failed", err)
		return err
	}
	fmt.Fprintf(a.out, "Imported %d rows\n", res.Created)
	return nil
}

// ensureLock takes the edit lock unless it is already ours. While offline
// the lock cannot be checked and the edit goes ahead as a draft.
func (a *App) ensureLock(ctx context.Context, id string) bool {
	if h, ok := a.ws.LockHolder(id); ok && h.ID == a.ws.Me().UserID {
		return true
	}
	res, err := a.ws.Lock(ctx, id)
	if err != nil {
		if client.IsConnectivity(err) {
			return true
		}
		a.report("Lock failed", err)
		return false
	}
	if !res.Granted {
		fmt.Fprintf(a.out, "Locked by %s\n", holderName(res.HeldBy))
		return false
	}
	return true
}

func (a *App) apply(res optimistic.Result, err error) error {
	if err != nil {
		var ae *client.ApplicationError
		switch {
		case errors.As(err, &ae) && errors.Is(err, common.ErrLockHeld):
			fmt.Fprintf(a.out, "Locked by %s, change reverted\n", holderName(ae.HeldBy))
		case errors.Is(err, common.ErrNotFound):
			fmt.Fprintln(a.out, "Row not found")
		default:
			a.report("Change reverted", err)
		}
		return err
	}
	switch {
	case res.Queued:
		fmt.Fprintln(a.out, "Saved offline, will sync when the server is back")
	case res.Deleted:
		fmt.Fprintln(a.out, "Deleted")
	default:
		fmt.Fprintf(a.out, "Saved row %s\n", res.Row.ID)
	}
	return nil
}

func (a *App) argID(args []string, usage string) (string, error) {
	if len(args) == 0 {
		fmt.Fprintln(a.out, "Usage:", usage)
		return "", errUsage
	}
	return args[0], nil
}

// marker returns the status shown next to a row id.
func (a *App) marker(ctx context.Context) func(id string) string {
	me := a.ws.Me().UserID
	return func(id string) string {
		var m []string
		if h, ok := a.ws.LockHolder(id); ok {
			if h.ID == me {
				m = append(m, "editing")
			} else {
				m = append(m, "locked by "+h.Name)
			}
		}
		if a.ws.HasDraft(ctx, id) {
			m = append(m, "draft")
		}
		return strings.Join(m, ", ")
	}
}

func (a *App) report(prefix string, err error) {
	fmt.Fprintf(a.out, "%s: %s\n", prefix, err.Error())
}

func holderName(h *client.Holder) string {
	if h == nil || h.Name == "" {
		return "another user"
	}
	return h.Name
}

// parseFields turns "name=value" lines into a field map. Values that parse
// as JSON keep their type; anything else is a string. An empty value maps
// to nil, which removes the field on update.
func parseFields(lines []string) (map[string]any, error) {
	out := make(map[string]any, len(lines))
	for _, l := range lines {
		k, v, ok := strings.Cut(l, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid field %q, expected name=value", l)
		}
		out[k] = parseValue(strings.TrimSpace(v))
	}
	return out, nil
}

func parseValue(s string) any {
	if s == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return s
}
