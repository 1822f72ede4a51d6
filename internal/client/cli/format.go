package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	cmodels "github.com/dmitrijs2005/teamsync/internal/client/models"
	"github.com/dmitrijs2005/teamsync/internal/models"
)

func writeRows(w io.Writer, rows []models.Row, marker func(id string) string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tFIELDS\tSTATUS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.Date.Format(dateLayout), formatFields(r.Fields), marker(r.ID))
	}
	tw.Flush()
}

func writeRow(w io.Writer, r models.Row, status string) {
	fmt.Fprintf(w, "ID:      %s\n", r.ID)
	fmt.Fprintf(w, "Date:    %s\n", r.Date.Format(dateLayout))
	fmt.Fprintf(w, "Version: %d\n", r.Version)
	if r.UpdatedBy != "" {
		fmt.Fprintf(w, "Updated: %s by %s\n", r.UpdatedAt.Format("2006-01-02 15:04"), r.UpdatedBy)
	}
	if status != "" {
		fmt.Fprintf(w, "Status:  %s\n", status)
	}
	for _, k := range sortedKeys(r.Fields) {
		fmt.Fprintf(w, "  %s: %v\n", k, r.Fields[k])
	}
}

func writeDrafts(w io.Writer, drafts []cmodels.Draft) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tCHANGE\tCAPTURED")
	for _, d := range drafts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.ResourceID, d.Kind, d.CapturedAt.Local().Format("2006-01-02 15:04:05"))
	}
	tw.Flush()
}

func writeColumns(w io.Writer, cols []models.Column) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tOPTIONS")
	for _, c := range cols {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Kind, strings.Join(c.Options, ", "))
	}
	tw.Flush()
}

func formatFields(f map[string]any) string {
	parts := make([]string, 0, len(f))
	for _, k := range sortedKeys(f) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, f[k]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
