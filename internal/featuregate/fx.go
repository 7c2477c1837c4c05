package featuregate

import "go.uber.org/fx"

var Module = fx.Module("featuregate",
	fx.Provide(
		New,
		func(g *CasbinGate) Gate { return g },
	),
)
