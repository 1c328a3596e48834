package port

import (
	"context"

	"github.com/UnitedWeRise-org/feed-media-core/internal/domain/entity"
)

// RemoteDispatcher hands a job to an external encoding provider. The provider
// reports completion asynchronously by updating the video record itself, so a
// dispatched job stays PROCESSING in the local queue.
type RemoteDispatcher interface {
	Dispatch(ctx context.Context, msg entity.EncodeDispatchMessage) error
}
