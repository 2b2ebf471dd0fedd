package stage

import (
	"context"

	"github.com/jonathan/digiready/internal/types"
)

// blockingAPI holds Submit until release is closed so tests can observe the
// in-flight state.
type blockingAPI struct {
	submitted chan struct{}
	release   chan struct{}
}

func newBlockingAPI() *blockingAPI {
	return &blockingAPI{submitted: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *blockingAPI) TimeLeft(_ context.Context, _ string) (*types.TimeLeft, error) {
	remaining := 600.0
	return &types.TimeLeft{RemainingSeconds: &remaining}, nil
}

func (b *blockingAPI) Caselet(_ context.Context, _ string) (*types.CaseletContent, error) {
	return &types.CaseletContent{Text: "scenario"}, nil
}

func (b *blockingAPI) Questions(_ context.Context, _ string) ([]types.Question, error) {
	return []types.Question{{ID: "q1", Text: "First?"}}, nil
}

func (b *blockingAPI) NextQuestion(_ context.Context, _, _ string) (*types.Question, error) {
	return nil, nil
}

func (b *blockingAPI) Submit(ctx context.Context, _ string, _ *types.SubmitRequest) (*types.SubmitResponse, error) {
	b.submitted <- struct{}{}
	select {
	case <-b.release:
		return &types.SubmitResponse{ScoringJobID: "job-1"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
