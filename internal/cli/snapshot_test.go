package cli

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerfold/internal/pipeline"
	"github.com/roach88/ledgerfold/internal/source"
)

// TestRunSnapshotGolden pins the serialized shape of a full run: tables,
// joined rows and timeline. The snapshot deliberately excludes the RunID,
// so the bytes are fully deterministic.
//
// To regenerate the golden file, run:
//
//	go test ./internal/cli -run TestRunSnapshotGolden -update
func TestRunSnapshotGolden(t *testing.T) {
	dir := writeFixtureData(t)

	input, err := source.Load(dir)
	require.NoError(t, err)

	res, err := pipeline.Run(context.Background(), input, pipeline.Options{
		RunIDs: pipeline.NewFixedGenerator("golden-run"),
	})
	require.NoError(t, err)

	snap, err := snapshot(res)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "run_snapshot", snap)
}
