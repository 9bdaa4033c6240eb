package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/hrygo/repairsense/internal/profile"
	"github.com/hrygo/repairsense/plugin/ai/classifier"
	"github.com/hrygo/repairsense/store/cache"
)

// clearCache removes every entry from the configured cache namespace.
func clearCache(ctx context.Context, p *profile.Profile, logger *slog.Logger, out io.Writer) error {
	register, err := cache.NewRegister(ctx, &p.Cache, logger)
	if err != nil {
		return errors.Wrap(err, "failed to create cache")
	}
	if register == nil {
		fmt.Fprintln(out, "cache is disabled, nothing to clear")
		return nil
	}
	defer register.Close()

	if !register.Clear(ctx) {
		return errors.New("failed to clear cache")
	}
	fmt.Fprintln(out, "cache cleared")
	return nil
}

// printModelInfo writes the checkpoint metadata as indented JSON.
func printModelInfo(ctx context.Context, p *profile.Profile, out io.Writer) error {
	meta, err := classifier.NewLocalModelRepository("").GetModelMetadata(ctx, p.Model.WeightsPath)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}
