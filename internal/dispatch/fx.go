package dispatch

import (
	"github.com/smallbiznis/replyflow/internal/dispatch/service"
	"github.com/smallbiznis/replyflow/internal/response"
	"github.com/smallbiznis/replyflow/internal/ruleindex"
	"go.uber.org/fx"
)

var Module = fx.Module("dispatch",
	fx.Provide(
		func(i *ruleindex.Index) service.CandidateSource { return i },
		func(g *response.Generator) service.Responder { return g },
		service.New,
	),
)
