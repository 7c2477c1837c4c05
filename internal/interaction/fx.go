package interaction

import (
	"github.com/smallbiznis/replyflow/internal/config"
	"github.com/smallbiznis/replyflow/internal/interaction/liveevents"
	"github.com/smallbiznis/replyflow/internal/interaction/repository"
	"github.com/smallbiznis/replyflow/internal/interaction/service"
	"go.uber.org/fx"
)

var Module = fx.Module("interaction",
	fx.Provide(
		repository.Provide,
		service.New,
		NewLiveHub,
	),
)

// NewLiveHub returns nil when live events are switched off; publishing to a
// nil hub is a no-op.
func NewLiveHub(cfg config.Config) *liveevents.Hub {
	if !cfg.Features.LiveEvents {
		return nil
	}
	return liveevents.NewHub()
}
