package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"kge/internal/domain"
	"kge/internal/port"
)

// requestSchema accepts an object with both lists present and every element
// a string. Other top-level fields are ignored.
const requestSchema = `{
	"type": "object",
	"required": ["entities", "relations"],
	"properties": {
		"entities":  {"type": "array", "items": {"type": "string"}},
		"relations": {"type": "array", "items": {"type": "string"}}
	}
}`

// Gateway validates batch payloads and translates them to and from the
// lookup service.
type Gateway struct {
	service port.BatchProcessor
	schema  *gojsonschema.Schema
	logger  *slog.Logger
}

// NewGateway creates a gateway in front of service.
func NewGateway(service port.BatchProcessor, logger *slog.Logger) (*Gateway, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile request schema: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{service: service, schema: schema, logger: logger}, nil
}

// Handle resolves a raw request body. It returns either a
// domain.BatchResponse or, when validation fails, a domain.ErrorResponse; the
// service is not called in that case. The error is non-nil only when ctx ends
// before the batch is resolved.
func (g *Gateway) Handle(ctx context.Context, body []byte) (any, error) {
	req, rejected := g.Decode(body)
	if rejected != nil {
		return *rejected, nil
	}

	res, err := g.service.Process(ctx, req)
	if err != nil {
		return nil, err
	}
	return domain.NewBatchResponse(res), nil
}

// Decode validates body as a whole. Either both lists are returned or the
// request is rejected.
func (g *Gateway) Decode(body []byte) (domain.BatchRequest, *domain.ErrorResponse) {
	result, err := g.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return domain.BatchRequest{}, malformed("request body is not valid JSON", err.Error())
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return domain.BatchRequest{}, malformed("entities and relations must both be arrays of strings", details...)
	}

	var req domain.BatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return domain.BatchRequest{}, malformed("request body could not be decoded", err.Error())
	}
	return req, nil
}

func malformed(message string, details ...string) *domain.ErrorResponse {
	return &domain.ErrorResponse{
		Error:   domain.ErrorCodeMalformed,
		Message: message,
		Details: details,
	}
}
