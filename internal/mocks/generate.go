// Package mocks provides mock implementations of the jobtrack ports for unit tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces in
// internal/core. To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRecordRepository(ctrl)
//	repo.EXPECT().GetByID(gomock.Any(), id).Return(rec, nil)
package mocks

// Create, GetByID, UpdateIfExists, AppendText, List
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_record_repository_mock.go github.com/target/jobtrack/internal/core JobRecordRepository

// Record, ListByRecord
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=audit_repository_mock.go github.com/target/jobtrack/internal/core AuditRepository

// Submit, QueryStatus, SetStatus
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=executor_mock.go github.com/target/jobtrack/internal/core Executor

// Publish
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=event_publisher_mock.go github.com/target/jobtrack/internal/core EventPublisher
