package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/getsentry/stackmerge/internal/collapsed"
	"github.com/getsentry/stackmerge/internal/errorutil"
	"github.com/getsentry/stackmerge/internal/speedscope"
	"github.com/getsentry/stackmerge/internal/storageutil"
)

func newSpeedscopeCommand(a *app) *cobra.Command {
	var (
		input  string
		object string
	)
	cmd := &cobra.Command{
		Use:   "speedscope",
		Short: "Convert a merged listing to a speedscope profile",
		Long: `Convert a merged listing to the speedscope file format. Every path becomes a
sample weighted by the number of ranks stopped on it. The listing is read from
a local file with -i or from the configured output with --object.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSpeedscope(cmd.Context(), input, object, time.Now())
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "listing file, - for stdin")
	cmd.Flags().StringVar(&object, "object", "", "listing object name in the output, e.g. merged_stack/stacktrace_20240309170405.txt")
	return cmd
}

func (a *app) runSpeedscope(ctx context.Context, input, object string, now time.Time) error {
	if (input == "") == (object == "") {
		return errors.New("exactly one of --input or --object is required")
	}
	out, err := openOutput(ctx, a.config, now)
	if err != nil {
		return err
	}
	defer out.close()

	var (
		raw  []byte
		name string
	)
	if input != "" {
		raw, err = readInput(input)
		name = baseName(input)
	} else {
		raw, err = storageutil.ReadObject(ctx, out.storage, object)
		name = baseName(object)
	}
	if err != nil {
		return err
	}
	if name == "-" || name == "" {
		name = "stacktrace_" + now.Format("20060102150405")
	}

	records, err := collapsed.Parse(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", errorutil.ErrDecode, err)
	}
	profile, err := speedscope.FromRecords(records, name)
	if err != nil {
		return fmt.Errorf("%w: %v", errorutil.ErrDecode, err)
	}
	b, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	objectName := storageutil.SpeedscopePath(name)
	if err := storageutil.WriteObject(ctx, out.storage, objectName, b); err != nil {
		return fmt.Errorf("%w: %v", errorutil.ErrOutput, err)
	}
	log.Info().Str("location", out.location(objectName)).Msg("speedscope profile written")
	return nil
}
