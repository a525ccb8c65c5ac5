package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/runixer/rara/internal/apperr"
	"github.com/runixer/rara/internal/files"
	"github.com/runixer/rara/internal/lark"
)

// localFetcher serves documents from the local filesystem. The file
// reference token is the path.
type localFetcher struct{}

func (localFetcher) Fetch(ctx context.Context, ref lark.FileReference) (files.RawDocument, error) {
	data, err := os.ReadFile(ref.Token)
	if err != nil {
		return files.RawDocument{}, apperr.Download("read local file", err)
	}
	name := ref.Name
	if name == "" {
		name = filepath.Base(ref.Token)
	}
	return files.NewRawDocument(ref.Token, name, "", data), nil
}

// readLocal loads path as a raw document named after its base name.
func readLocal(path string) (files.RawDocument, error) {
	doc, err := localFetcher{}.Fetch(context.Background(), lark.FileReference{Token: path})
	if err != nil {
		return files.RawDocument{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return doc, nil
}
