package ingest

import (
	"github.com/fieldpulse/repboard/internal/ingest/service"
	"go.uber.org/fx"
)

var Module = fx.Module("ingest.service",
	fx.Provide(service.New),
)
