package reading

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

type LoadOptions struct {
	// SkipInvalid logs and skips files that fail to load instead of failing
	// the whole directory.
	SkipInvalid bool
	Logger      *slog.Logger
}

// LoadFile reads one export file.
func LoadFile(path string) (Reading, error) {
	r, _, err := loadFile(path)
	return r, err
}

func loadFile(path string) (Reading, Schema, error) {
	ts, err := ParseTimestamp(path)
	if err != nil {
		return Reading{}, SchemaUnknown, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Reading{}, SchemaUnknown, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("close export file", "path", path, "error", err)
		}
	}()

	s, err := Decode(f)
	if err != nil {
		return Reading{}, SchemaUnknown, err
	}
	return Reading{Time: ts, Desired: s.Desired, Actual: s.Actual, On: s.On}, s.Schema, nil
}

// LoadDir reads every regular file in dir. The result is in directory order;
// use Sort before plotting.
func LoadDir(ctx context.Context, dir string, opts LoadOptions) ([]Reading, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	out := make([]Reading, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		r, schema, err := loadFile(path)
		if err != nil {
			if opts.SkipInvalid {
				logger.Warn("skipping export file", "path", path, "error", err)
				skipped++
				continue
			}
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		logger.Debug("export file loaded", "path", path, "schema", schema.String())
		out = append(out, r)
	}

	logger.Debug("export files loaded", "dir", dir, "rows", len(out), "skipped", skipped)
	return out, nil
}
