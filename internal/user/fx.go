package user

import (
	"github.com/smallbiznis/replyflow/internal/cache"
	"github.com/smallbiznis/replyflow/internal/user/repository"
	"github.com/smallbiznis/replyflow/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(cache.NewUserPlanCache),
	fx.Provide(service.New),
)
