package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"storefleet.dev/storefleet/internal/domain"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

type printer struct {
	format string
	out    io.Writer
}

func newPrinter(format string, out io.Writer) (printer, error) {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return printer{format: format, out: out}, nil
	}
	return printer{}, fmt.Errorf("unknown output format %q", format)
}

// structured prints v as JSON or YAML. It reports false for table output.
func (p printer) structured(v any) (bool, error) {
	switch p.format {
	case outputJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(toYAMLValue(v)); err != nil {
			return true, err
		}
		return true, enc.Close()
	}
	return false, nil
}

// toYAMLValue routes v through JSON so YAML keys follow the API's json tags.
func toYAMLValue(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var generic any
	if err := json.Unmarshal(buf, &generic); err != nil {
		return v
	}
	return generic
}

func (p printer) table(header string, rows func(w io.Writer)) error {
	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header)
	rows(w)
	return w.Flush()
}

func (p printer) storeList(list *domain.StoreList) error {
	if done, err := p.structured(list); done {
		return err
	}
	if err := p.table("ID\tNAME\tSTATUS\tPLAN\tURL\tAGE", func(w io.Writer) {
		for _, s := range list.Stores {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				s.ID, s.Name, s.Status, s.Plan, deref(s.URL), age(s.CreatedAt))
		}
	}); err != nil {
		return err
	}
	_, err := fmt.Fprintf(p.out, "\nqueue: %d\n", list.QueueSize)
	return err
}

func (p printer) store(s *domain.Store) error {
	if done, err := p.structured(s); done {
		return err
	}
	return p.table("FIELD\tVALUE", func(w io.Writer) {
		fmt.Fprintf(w, "ID\t%s\n", s.ID)
		fmt.Fprintf(w, "Name\t%s\n", s.Name)
		fmt.Fprintf(w, "Namespace\t%s\n", s.Namespace)
		fmt.Fprintf(w, "Status\t%s\n", s.Status)
		fmt.Fprintf(w, "Plan\t%s\n", s.Plan)
		fmt.Fprintf(w, "Admin email\t%s\n", s.AdminEmail)
		if s.URL != nil {
			fmt.Fprintf(w, "URL\t%s\n", *s.URL)
		}
		if s.AdminURL != nil {
			fmt.Fprintf(w, "Admin URL\t%s\n", *s.AdminURL)
		}
		if s.AdminPassword != nil {
			fmt.Fprintf(w, "Admin password\t%s\n", *s.AdminPassword)
		}
		if s.ErrorMessage != nil {
			fmt.Fprintf(w, "Error\t%s\n", *s.ErrorMessage)
		}
		fmt.Fprintf(w, "Created\t%s\n", s.CreatedAt.Format(time.RFC3339))
	})
}

func (p printer) events(events []*domain.ProvisioningEvent) error {
	if done, err := p.structured(events); done {
		return err
	}
	return p.table("TIME\tSTEP\tSTATUS\tMESSAGE", func(w io.Writer) {
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Format(time.RFC3339), e.Step, e.Status, e.Message)
		}
	})
}

func (p printer) audit(entries []*domain.AuditEntry) error {
	if done, err := p.structured(entries); done {
		return err
	}
	return p.table("TIME\tACTION\tRESOURCE\tNAME\tDETAILS\tIP", func(w io.Writer) {
		for _, a := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				a.CreatedAt.Format(time.RFC3339), a.Action, a.ResourceID, a.ResourceName, a.Details, a.IPAddress)
		}
	})
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return time.Since(t).Round(time.Second).String()
}
