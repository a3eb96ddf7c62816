package backfill

import (
	"github.com/fieldpulse/repboard/internal/backfill/service"
	"go.uber.org/fx"
)

var Module = fx.Module("backfill.engine",
	fx.Provide(service.New),
)
