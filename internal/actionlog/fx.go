package actionlog

import "go.uber.org/fx"

var Module = fx.Module("actionlog",
	fx.Provide(NewHTTPClient),
	fx.Provide(NewDispatcher),
)
