// Package mocks provides mock implementations of the job queue ports for tests.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in
// internal/core. To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	archive := mocks.NewMockJobArchive(ctrl)
//	archive.EXPECT().Archive(gomock.Any(), gomock.Any()).Return(nil)
package mocks

// Generate mock for JobArchive interface from internal/core package.
// This creates MockJobArchive with methods: Archive, List
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_archive_mock.go github.com/target/mmk-jobqueue/internal/core JobArchive

// Generate mock for JobSnapshotStore interface from internal/core package.
// This creates MockJobSnapshotStore with methods: Save, Get, Purge
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_snapshot_store_mock.go github.com/target/mmk-jobqueue/internal/core JobSnapshotStore
