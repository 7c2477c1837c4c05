package ruleindex

import "go.uber.org/fx"

var Module = fx.Module("ruleindex",
	fx.Provide(
		NewGormSource,
		New,
		func(i *Index) Invalidator { return i },
	),
)
