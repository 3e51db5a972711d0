package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oicur0t/tracex/internal/export"
	"github.com/oicur0t/tracex/pkg/models"
)

const timeLayout = "2006-01-02 15:04:05.0000000"

// printer writes records in the configured output format.
type printer struct {
	w      io.Writer
	format string
	source string
	json   *json.Encoder
	yaml   *yaml.Encoder
}

func newPrinter(w io.Writer, format, source string) *printer {
	p := &printer{w: w, format: format, source: source}
	switch format {
	case "json":
		p.json = json.NewEncoder(w)
	case "yaml":
		p.yaml = yaml.NewEncoder(w)
		p.yaml.SetIndent(2)
	}
	return p
}

// Print writes recs. In YAML each call is one document.
func (p *printer) Print(recs []*models.Record) error {
	switch p.format {
	case "json":
		for _, rec := range recs {
			if err := p.json.Encode(export.NewDocument(rec, p.source, "", time.Time{})); err != nil {
				return err
			}
		}
		return nil
	case "yaml":
		docs := make([]export.Document, len(recs))
		for i, rec := range recs {
			docs[i] = export.NewDocument(rec, p.source, "", time.Time{})
		}
		return p.yaml.Encode(docs)
	default:
		for _, rec := range recs {
			if _, err := fmt.Fprintln(p.w, formatText(rec)); err != nil {
				return err
			}
		}
		return nil
	}
}

func (p *printer) Close() error {
	if p.yaml != nil {
		return p.yaml.Close()
	}
	return nil
}

func formatText(rec *models.Record) string {
	var marker string
	switch {
	case rec.Entry && rec.Synthesized:
		marker = "{+ "
	case rec.Exit && rec.Synthesized:
		marker = "}+ "
	case rec.Entry:
		marker = "{ "
	case rec.Exit:
		marker = "} "
	}
	msg := rec.Message
	if msg == "" && (rec.Entry || rec.Exit) {
		msg = rec.MethodName()
	}
	return fmt.Sprintf("%s %8d %-7s %-20s %-24s %s %s%s%s",
		rec.Time.Format(timeLayout),
		rec.Number,
		rec.Level,
		rec.ThreadNameString(),
		rec.LoggerName(),
		rec.MethodName(),
		strings.Repeat("  ", rec.Depth),
		marker,
		msg)
}
