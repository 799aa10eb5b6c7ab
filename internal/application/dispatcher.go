package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"golang.org/x/sync/errgroup"

	"pointsweep/internal/domain/model"
)

// WorkerSpec is one worker's contiguous share of the accounts list,
// expressed as slice bounds so parent and child agree without shipping
// account data between processes.
type WorkerSpec struct {
	Offset int
	Count  int
}

// PlanWorkers splits total accounts into up to workers contiguous chunks of
// ceiling size. The chunks cover every index exactly once; the final chunk
// absorbs the remainder, so fewer than workers chunks can come back.
func PlanWorkers(total, workers int) []WorkerSpec {
	if total <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	size := (total + workers - 1) / workers
	var specs []WorkerSpec
	for offset := 0; offset < total; offset += size {
		count := size
		if offset+count > total {
			count = total - offset
		}
		specs = append(specs, WorkerSpec{Offset: offset, Count: count})
	}
	return specs
}

// PartitionAccounts applies a WorkerSpec-style split directly to the
// accounts slice.
func PartitionAccounts(accounts []model.Account, workers int) [][]model.Account {
	specs := PlanWorkers(len(accounts), workers)
	chunks := make([][]model.Account, 0, len(specs))
	for _, spec := range specs {
		chunks = append(chunks, accounts[spec.Offset:spec.Offset+spec.Count])
	}
	return chunks
}

// Dispatcher fans one run out across child processes, each re-executing this
// binary in worker mode with its slice bounds. Account state never crosses
// process boundaries; every worker reads the same accounts file and slices
// it by offset and count.
type Dispatcher struct {
	logger *slog.Logger

	executable func() (string, error)
	newCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewDispatcher creates a Dispatcher that re-executes the current binary.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:     logger,
		executable: os.Executable,
		newCommand: exec.CommandContext,
	}
}

// Dispatch starts one worker process per planned chunk and waits for all of
// them. extraArgs are appended to every worker's command line so flags like
// --config reach the children and all processes load the same accounts file.
// The first worker failure cancels the rest through the group context.
func (d *Dispatcher) Dispatch(ctx context.Context, total, workers int, extraArgs ...string) error {
	specs := PlanWorkers(total, workers)
	if len(specs) == 0 {
		d.logger.Warn("no accounts to dispatch")
		return nil
	}

	exe, err := d.executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		args := []string{
			"worker",
			"--offset", strconv.Itoa(spec.Offset),
			"--count", strconv.Itoa(spec.Count),
		}
		args = append(args, extraArgs...)
		cmd := d.newCommand(ctx, exe, args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		d.logger.Info("worker started",
			"worker", i,
			"offset", spec.Offset,
			"count", spec.Count,
		)
		g.Go(func() error {
			if err := cmd.Run(); err != nil {
				return fmt.Errorf("worker %d (offset %d, count %d): %w", i, spec.Offset, spec.Count, err)
			}
			return nil
		})
	}
	return g.Wait()
}
