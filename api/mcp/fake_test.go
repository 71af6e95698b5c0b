package mcp_test

import (
	"context"

	"github.com/papercomputeco/nestlog/pkg/ingest"
)

type fakeService struct{}

func (*fakeService) Submit(context.Context, ingest.MessageRequest) (*ingest.MessageResponse, error) {
	return &ingest.MessageResponse{}, nil
}

func (*fakeService) Timeline(context.Context, string, int, int) ([]ingest.TimelineItem, error) {
	return nil, nil
}
