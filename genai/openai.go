/*
openai.go - OpenAI-backed Generator

PURPOSE:
  Implements Generator on the OpenAI Responses API. Prompts go out as a
  single user message; the raw output text comes back for the response
  parser to pick apart.

CONFIGURATION:
  Model, max output tokens, and temperature are fixed at construction.
  The defaults match the analysis pipeline's needs: short structured
  responses, low temperature.
*/
package genai

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const (
	defaultMaxOutputTokens = 2048
	defaultTemperature     = 0.3
)

// OpenAI is a Generator backed by the OpenAI Responses API.
type OpenAI struct {
	client          *openai.Client
	model           string
	maxOutputTokens int64
	temperature     float64
}

func NewOpenAI(apiKey, model string) *OpenAI {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAI{
		client:          &client,
		model:           model,
		maxOutputTokens: defaultMaxOutputTokens,
		temperature:     defaultTemperature,
	}
}

func (g *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", errors.New("genai: client is nil")
	}
	if g.model == "" {
		return "", errors.New("genai: model is empty")
	}

	resp, err := g.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           g.model,
		MaxOutputTokens: openai.Int(g.maxOutputTokens),
		Temperature:     openai.Float(g.temperature),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
	})
	if err != nil {
		return "", err
	}

	text := resp.OutputText()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("genai: empty model response")
	}
	return text, nil
}
