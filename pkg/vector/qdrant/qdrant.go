// Package qdrant provides a vector.Driver backed by a Qdrant collection.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	qc "github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/nestlog/pkg/vector"
)

const (
	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	payloadProfileID = "profile_id"
	payloadText      = "text"
	payloadCreatedAt = "created_at"
)

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is "host" or "host:port" of the gRPC endpoint.
	Target     string
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions uint
}

// Driver implements vector.Driver on Qdrant. Documents carry their profile
// id in the payload and queries filter on it.
type Driver struct {
	client     *qc.Client
	collection string
	logger     *slog.Logger
}

var _ vector.Driver = (*Driver)(nil)

// NewDriver connects to Qdrant and creates the collection when missing.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Collection == "" {
		return nil, errors.New("qdrant collection is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}

	client, err := qc.NewClient(&qc.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %w", vector.ErrConnection, err)
	}
	if !exists {
		err := client.CreateCollection(ctx, &qc.CreateCollection{
			CollectionName: c.Collection,
			VectorsConfig: qc.NewVectorsConfig(&qc.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qc.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %s: %w", c.Collection, err)
		}
	}

	logger.Info("qdrant vector driver initialized",
		"host", host,
		"port", port,
		"collection", c.Collection,
		"created", !exists,
	)

	return &Driver{client: client, collection: c.Collection, logger: logger}, nil
}

func splitTarget(target string) (string, int, error) {
	if target == "" {
		return "localhost", DefaultPort, nil
	}
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// no port
		return target, DefaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}

// Add upserts documents as points keyed by their UUID.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*qc.PointStruct, 0, len(docs))
	for _, doc := range docs {
		points = append(points, &qc.PointStruct{
			Id:      qc.NewID(doc.ID),
			Vectors: qc.NewVectors(doc.Embedding...),
			Payload: qc.NewValueMap(map[string]any{
				payloadProfileID: doc.ProfileID,
				payloadText:      doc.Text,
				payloadCreatedAt: doc.CreatedAt.UnixMilli(),
			}),
		})
	}

	wait := true
	if _, err := d.client.Upsert(ctx, &qc.UpsertPoints{
		CollectionName: d.collection,
		Wait:           &wait,
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", "count", len(docs))
	return nil
}

// Query returns the topK nearest points of the profile.
func (d *Driver) Query(ctx context.Context, profileID string, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)

	points, err := d.client.Query(ctx, &qc.QueryPoints{
		CollectionName: d.collection,
		Query:          qc.NewQuery(embedding...),
		Filter: &qc.Filter{
			Must: []*qc.Condition{qc.NewMatch(payloadProfileID, profileID)},
		},
		Limit:       &limit,
		WithPayload: qc.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:        p.GetId().GetUuid(),
				ProfileID: payload[payloadProfileID].GetStringValue(),
				Text:      payload[payloadText].GetStringValue(),
				CreatedAt: time.UnixMilli(payload[payloadCreatedAt].GetIntegerValue()).UTC(),
			},
			Score: p.GetScore(),
		})
	}

	d.logger.Debug("queried qdrant", "profile_id", profileID, "results", len(results))
	return results, nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}
