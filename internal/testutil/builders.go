package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/target/jobtrack/internal/domain/model"
)

// RecordRequestBuilder builds CreateJobRecordRequest values for tests.
type RecordRequestBuilder struct {
	req *model.CreateJobRecordRequest
}

// NewRecordRequest starts a request for kind with no parameters.
func NewRecordRequest(kind string) *RecordRequestBuilder {
	return &RecordRequestBuilder{
		req: &model.CreateJobRecordRequest{Kind: kind, Parameters: model.Parameters{}},
	}
}

// WithParam sets a parameter to the JSON encoding of value. It panics if value cannot be
// encoded, which only happens for test bugs.
func (b *RecordRequestBuilder) WithParam(name string, value any) *RecordRequestBuilder {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Sprintf("encode param %s: %v", name, err)) //nolint:forbidigo // test fixture
	}
	b.req.Parameters[name] = raw
	return b
}

// WithRawParam sets a parameter to raw JSON verbatim.
func (b *RecordRequestBuilder) WithRawParam(name, raw string) *RecordRequestBuilder {
	b.req.Parameters[name] = json.RawMessage(raw)
	return b
}

// SubmittedBy sets the submitting actor.
func (b *RecordRequestBuilder) SubmittedBy(actor string) *RecordRequestBuilder {
	b.req.SubmittedBy = &actor
	return b
}

// Build returns the request. The builder must not be reused afterwards.
func (b *RecordRequestBuilder) Build() *model.CreateJobRecordRequest {
	return b.req
}

// ExportRequest is an export record request writing rows rows as format.
func ExportRequest(format string, rows int) *model.CreateJobRecordRequest {
	return NewRecordRequest("export").
		WithParam("format", format).
		WithParam("rows", rows).
		Build()
}

// CleanupRequest is a cleanup record request for records older than olderThan (a Go duration).
func CleanupRequest(olderThan string, dryRun bool) *model.CreateJobRecordRequest {
	return NewRecordRequest("cleanup").
		WithParam("older_than", olderThan).
		WithParam("dry_run", dryRun).
		Build()
}
