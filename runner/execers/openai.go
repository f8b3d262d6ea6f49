package execers

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/solo/runner"
)

const DefaultImageModel = "dall-e-3"

type OpenAIConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	// Per-request ceiling, independent of cancellation.
	Timeout time.Duration
}

// OpenAIExecutor generates images through an OpenAI compatible images endpoint.
// Cancellation aborts the in-flight HTTP request.
type OpenAIExecutor struct {
	client openai.Client
	config OpenAIConfig
}

var _ runner.Executor = (*OpenAIExecutor)(nil)

func NewOpenAIExecutor(config OpenAIConfig) *OpenAIExecutor {
	if config.Model == "" {
		config.Model = DefaultImageModel
	}
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}
	return &OpenAIExecutor{client: openai.NewClient(opts...), config: config}
}

func (e *OpenAIExecutor) Execute(params runner.Params, token *runner.CancelToken, sink runner.ProgressSink) (runner.Output, error) {
	req, err := e.request(params)
	if err != nil {
		return runner.Output{}, err
	}
	if err := token.Err(); err != nil {
		return runner.Output{}, err
	}

	ctx, cancel := token.Context(context.Background())
	defer cancel()

	start := time.Now()
	sink(runner.FractionProgress("request", 0))
	resp, err := e.client.Images.Generate(ctx, req)
	if token.Cancelled() {
		return runner.Output{}, runner.ErrCancelled
	}
	if err != nil {
		return runner.Output{}, classify(err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return runner.Output{}, runner.InternalError("empty image response")
	}
	sink(runner.FractionProgress("decode", 0.9))
	payload, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return runner.Output{}, runner.InternalError("decoding image: %v", err)
	}
	sink(runner.FractionProgress("decode", 1))
	log.WithFields(log.Fields{"model": req.Model, "bytes": len(payload)}).Debug("Image generated")
	return runner.Output{Payload: payload, Elapsed: time.Since(start)}, nil
}

// request maps params onto an image request, refusing what the endpoint cannot express.
func (e *OpenAIExecutor) request(params runner.Params) (openai.ImageGenerateParams, error) {
	var req openai.ImageGenerateParams
	if params.Prompt == "" {
		return req, runner.UnsupportedOption("empty prompt")
	}
	if params.NegativePrompt != "" {
		return req, runner.UnsupportedOption("negative_prompt is not supported by %s", e.config.Model)
	}
	if params.Steps != 0 || params.GuidanceScale != 0 || params.Seed != 0 {
		return req, runner.UnsupportedOption("steps, seed and guidance_scale are not supported by %s", e.config.Model)
	}
	model := params.Model
	if model == "" {
		model = e.config.Model
	}
	req.Prompt = params.Prompt
	req.Model = openai.ImageModel(model)
	req.N = openai.Int(1)
	req.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	if params.Width > 0 || params.Height > 0 {
		req.Size = openai.ImageGenerateParamsSize(fmt.Sprintf("%dx%d", params.Width, params.Height))
	}
	return req, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusBadRequest {
			return runner.UnsupportedOption("%s", apiErr.Message)
		}
		return runner.InternalError("image endpoint returned %d: %s", apiErr.StatusCode, apiErr.Message)
	}
	return errors.Wrap(err, "generating image")
}
