package runners

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"

	"github.com/twitter/solo/runner"
)

func TestExecutorContract(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	exec := runner.NewMockExecutor(mockCtrl)
	params := runner.Params{Prompt: "a lighthouse", Width: 512, Height: 512}

	var tokens []*runner.CancelToken
	exec.EXPECT().Execute(params, gomock.Any(), gomock.Any()).DoAndReturn(
		func(p runner.Params, token *runner.CancelToken, sink runner.ProgressSink) (runner.Output, error) {
			tokens = append(tokens, token)
			sink(runner.FractionProgress("denoise", 0.5))
			return runner.Output{Payload: []byte("png"), Elapsed: time.Second}, nil
		})
	exec.EXPECT().Execute(params, gomock.Any(), gomock.Any()).DoAndReturn(
		func(p runner.Params, token *runner.CancelToken, sink runner.ProgressSink) (runner.Output, error) {
			tokens = append(tokens, token)
			return runner.Output{}, errors.Wrap(errors.New("device lost"), "denoise")
		})

	s := NewScheduler(exec, Config{}, nil)
	defer s.Stop(context.Background())
	progress := newProgressLog()
	h, err := s.Submit(params, progress.sink, runner.DefaultSubmitOptions())
	if err != nil {
		t.Fatal(err)
	}
	r := assertWait(t, h, runner.OK)
	if string(r.Payload) != "png" || r.Elapsed != time.Second {
		t.Fatalf("Unexpected result %s", r)
	}
	if events := progress.get(); len(events) != 1 || *events[0].Percent != 50 {
		t.Fatalf("Unexpected progress %v", events)
	}

	if h, err = s.Submit(params, nil, runner.DefaultSubmitOptions()); err != nil {
		t.Fatal(err)
	}
	r = assertWait(t, h, runner.INTERNAL_ERROR)
	if r.Error != "denoise: device lost" {
		t.Fatalf("Unexpected error %q", r.Error)
	}

	if len(tokens) != 2 || tokens[0] == tokens[1] {
		t.Fatal("Each job must get its own cancellation token")
	}
}
