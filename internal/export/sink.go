// Package export ships decoded records to external stores.
package export

import (
	"context"
	"time"

	"github.com/oicur0t/tracex/pkg/models"
)

// Sink stores batches of records.
type Sink interface {
	WriteBatch(ctx context.Context, batch models.RecordBatch) error
	Close(ctx context.Context) error
}

// Document is the stored form of a record.
type Document struct {
	Source      string    `bson:"source" json:"source,omitempty" yaml:"source,omitempty"`
	LoadID      string    `bson:"load_id" json:"load_id,omitempty" yaml:"load_id,omitempty"`
	Session     int       `bson:"session" json:"session" yaml:"session"`
	Number      uint32    `bson:"number" json:"number" yaml:"number"`
	Time        time.Time `bson:"time" json:"time" yaml:"time"`
	ThreadID    int32     `bson:"thread_id" json:"thread_id" yaml:"thread_id"`
	ThreadName  string    `bson:"thread_name" json:"thread_name" yaml:"thread_name"`
	Level       string    `bson:"level" json:"level" yaml:"level"`
	Logger      string    `bson:"logger" json:"logger" yaml:"logger"`
	Method      string    `bson:"method" json:"method" yaml:"method"`
	Depth       int       `bson:"depth" json:"depth" yaml:"depth"`
	Message     string    `bson:"message" json:"message" yaml:"message"`
	Entry       bool      `bson:"entry,omitempty" json:"entry,omitempty" yaml:"entry,omitempty"`
	Exit        bool      `bson:"exit,omitempty" json:"exit,omitempty" yaml:"exit,omitempty"`
	Synthesized bool      `bson:"synthesized,omitempty" json:"synthesized,omitempty" yaml:"synthesized,omitempty"`
	ExportedAt  time.Time `bson:"exported_at" json:"-" yaml:"-"`
}

// NewDocument converts a record.
func NewDocument(rec *models.Record, source, loadID string, exportedAt time.Time) Document {
	return Document{
		Source:      source,
		LoadID:      loadID,
		Session:     rec.Session,
		Number:      rec.Number,
		Time:        rec.Time,
		ThreadID:    rec.ThreadID(),
		ThreadName:  rec.ThreadNameString(),
		Level:       rec.Level.String(),
		Logger:      rec.LoggerName(),
		Method:      rec.MethodName(),
		Depth:       rec.Depth,
		Message:     rec.Message,
		Entry:       rec.Entry,
		Exit:        rec.Exit,
		Synthesized: rec.Synthesized,
		ExportedAt:  exportedAt,
	}
}
