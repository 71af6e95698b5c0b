// Package vectorutils builds the configured vector driver.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/nestlog/pkg/vector"
	"github.com/papercomputeco/nestlog/pkg/vector/qdrant"
	"github.com/papercomputeco/nestlog/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	ProviderType string
	// TargetURL is a database path for "sqlite" and host:port for "qdrant".
	TargetURL  string
	Collection string
	Dimensions uint
	Logger     *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "sqlite", "sqlite-vec":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.TargetURL,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		return qdrant.NewDriver(ctx, qdrant.Config{
			Target:     o.TargetURL,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
