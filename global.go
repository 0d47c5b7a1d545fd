package ctrace

import (
	"github.com/Nordstrom/ctrace-pipeline/config"
	"github.com/Nordstrom/ctrace-pipeline/core"
	opentracing "github.com/opentracing/opentracing-go"
	godebug "github.com/tj/go-debug"
)

// TracerOptions allows creating a customized Tracer via Init. The object must
// not be updated when there is an active tracer using it.
type TracerOptions = core.TracerOptions

var (
	debug = godebug.Debug("ctrace")
)

func init() {
	debug("Initializing ctrace...")
	Init(TracerOptions{})
}

// Init initializes the global Tracer returned by Global().
func Init(opts TracerOptions) core.Tracer {
	opentracing.SetGlobalTracer(core.NewWithOptions(opts))
	return Global()
}

// InitFromConfig initializes the global Tracer from cfg. The returned func
// flushes span export and must be called before the process exits.
func InitFromConfig(cfg *config.Config) (core.Tracer, func() error, error) {
	trc, shutdown, err := cfg.NewTracer()
	if err != nil {
		return nil, nil, err
	}
	opentracing.SetGlobalTracer(trc)
	debug("initialized %s from config", cfg.ServiceName)
	return trc, shutdown, nil
}

// Global returns the global Tracer. If the OpenTracing global tracer was
// replaced by a foreign implementation, a fresh default tracer is installed.
func Global() core.Tracer {
	if trc, ok := opentracing.GlobalTracer().(core.Tracer); ok {
		return trc
	}
	debug("global tracer is %T, reinitializing", opentracing.GlobalTracer())
	return Init(TracerOptions{})
}
