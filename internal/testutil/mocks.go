// Package testutil provides shared test mocks, fixtures, and helpers.
// Packages that testutil itself imports (lark, analysis, openai, files)
// keep their test doubles local, since importing testutil from their own
// tests would be an import cycle.
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/runixer/rara/internal/analysis"
	"github.com/runixer/rara/internal/files"
	"github.com/runixer/rara/internal/lark"
)

// MockFetcher implements pipeline.Fetcher for tests.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, ref lark.FileReference) (files.RawDocument, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(files.RawDocument), args.Error(1)
}

// MockExtractor implements pipeline.Extractor for tests.
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, doc files.RawDocument) (string, error) {
	args := m.Called(ctx, doc)
	return args.String(0), args.Error(1)
}

// MockAnalyzer implements pipeline.Analyzer for tests.
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) Analyze(ctx context.Context, in analysis.Input) (analysis.Result, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(analysis.Result), args.Error(1)
}
