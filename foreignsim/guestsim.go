package foreignsim

import (
	"context"
	"unsafe"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/embercef/bridge"
	"github.com/embercef/bridge/capi"
	"github.com/embercef/bridge/errors"
	"github.com/embercef/bridge/foreignsim/internal/wasmgen"
	"github.com/embercef/bridge/registry"
	"github.com/embercef/bridge/wrap"
)

// GuestSim runs the wasm guest and routes its host calls through the pin
// table back into vtable slots.
type GuestSim struct {
	log     *zap.Logger
	pins    *registry.Table
	runtime wazero.Runtime
	module  api.Module
}

// GuestOption configures a GuestSim.
type GuestOption func(*GuestSim)

// WithGuestLogger overrides the library logger for this simulator.
func WithGuestLogger(l *zap.Logger) GuestOption {
	return func(g *GuestSim) { g.log = l }
}

// WithGuestRegistry shares an existing pin table instead of creating one.
func WithGuestRegistry(t *registry.Table) GuestOption {
	return func(g *GuestSim) { g.pins = t }
}

// NewGuestSim compiles and instantiates the guest module with the host
// functions bound.
func NewGuestSim(ctx context.Context, opts ...GuestOption) (*GuestSim, error) {
	g := &GuestSim{}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = bridge.Logger()
	}
	if g.pins == nil {
		g.pins = registry.NewTable()
	}

	g.runtime = wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())

	builder := g.runtime.NewHostModuleBuilder(wasmgen.HostModule)
	for _, fn := range g.hostFuncs() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(fn.handler), fn.params, fn.results).
			Export(fn.name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		g.runtime.Close(ctx)
		return nil, errors.Instantiation(err)
	}

	mod, err := g.runtime.Instantiate(ctx, wasmgen.Guest())
	if err != nil {
		g.runtime.Close(ctx)
		return nil, errors.Instantiation(err)
	}
	g.module = mod
	return g, nil
}

// Pins exposes the simulator's pin table.
func (g *GuestSim) Pins() *registry.Table { return g.pins }

// Close tears down the wasm runtime. The pin table is left alone; pinned
// objects still belong to whoever exported them.
func (g *GuestSim) Close(ctx context.Context) error {
	return g.runtime.Close(ctx)
}

// Drive runs the guest's canonical call sequence against three pinned
// handles.
func (g *GuestSim) Drive(ctx context.Context, client, req, comp registry.Handle) error {
	fn := g.module.ExportedFunction(wasmgen.ExportDrive)
	if _, err := fn.Call(ctx, uint64(client), uint64(req), uint64(comp)); err != nil {
		return errors.GuestTrap(wasmgen.ExportDrive, err)
	}
	return nil
}

// Storm runs n guest-side add-refs then n releases against one handle.
func (g *GuestSim) Storm(ctx context.Context, h registry.Handle, n uint32) error {
	fn := g.module.ExportedFunction(wasmgen.ExportStorm)
	if _, err := fn.Call(ctx, uint64(h), uint64(n)); err != nil {
		return errors.GuestTrap(wasmgen.ExportStorm, err)
	}
	return nil
}

type hostFunc struct {
	name    string
	params  []api.ValueType
	results []api.ValueType
	handler func(ctx context.Context, mod api.Module, stack []uint64)
}

func (g *GuestSim) hostFuncs() []hostFunc {
	i32 := api.ValueTypeI32
	i64 := api.ValueTypeI64
	return []hostFunc{
		{wasmgen.FnObjectAddRef, []api.ValueType{i32}, nil, g.objectAddRef},
		{wasmgen.FnObjectRelease, []api.ValueType{i32}, []api.ValueType{i32}, g.objectRelease},
		{wasmgen.FnObjectHasOneRef, []api.ValueType{i32}, []api.ValueType{i32}, g.objectHasOneRef},
		{wasmgen.FnClientOnComplete, []api.ValueType{i32, i32}, nil, g.clientOnComplete},
		{wasmgen.FnClientOnProgress, []api.ValueType{i32, i32, i64, i64}, nil, g.clientOnProgress},
		{wasmgen.FnClientOnData, []api.ValueType{i32, i32, i32, i32}, nil, g.clientOnData},
		{wasmgen.FnCompletionOnFinished, []api.ValueType{i32, i32, i32, i32}, nil, g.completionOnFinished},
	}
}

// Host functions never trap on a bad handle; they log and return the
// slot's default, the same policy a null vtable slot gets.

func (g *GuestSim) objectAddRef(_ context.Context, _ api.Module, stack []uint64) {
	base, ok := g.resolve(registry.Handle(stack[0]), wasmgen.FnObjectAddRef)
	if !ok || base.AddRef == nil {
		return
	}
	base.AddRef(base)
}

func (g *GuestSim) objectRelease(_ context.Context, _ api.Module, stack []uint64) {
	h := registry.Handle(stack[0])
	base, ok := g.resolve(h, wasmgen.FnObjectRelease)
	if !ok || base.Release == nil {
		stack[0] = uint64(uint32(capi.Alive))
		return
	}
	status := base.Release(base)
	if status == capi.Destroyed {
		if err := g.pins.MarkDestroyed(h); err != nil {
			g.log.Warn("mark destroyed", zap.Uint32("handle", uint32(h)), zap.Error(err))
		}
	}
	stack[0] = uint64(uint32(status))
}

func (g *GuestSim) objectHasOneRef(_ context.Context, _ api.Module, stack []uint64) {
	base, ok := g.resolve(registry.Handle(stack[0]), wasmgen.FnObjectHasOneRef)
	if !ok || base.HasOneRef == nil {
		stack[0] = uint64(uint32(capi.CBool(false)))
		return
	}
	stack[0] = uint64(uint32(base.HasOneRef(base)))
}

func (g *GuestSim) clientOnComplete(_ context.Context, _ api.Module, stack []uint64) {
	client, ok := g.resolveClient(registry.Handle(stack[0]), wasmgen.FnClientOnComplete)
	if !ok || client.OnComplete == nil {
		return
	}
	req, ok := g.resolveRequest(registry.Handle(stack[1]), wasmgen.FnClientOnComplete)
	if !ok {
		return
	}
	client.OnComplete(client, req)
}

func (g *GuestSim) clientOnProgress(_ context.Context, _ api.Module, stack []uint64) {
	client, ok := g.resolveClient(registry.Handle(stack[0]), wasmgen.FnClientOnProgress)
	if !ok || client.OnDownloadProgress == nil {
		return
	}
	req, ok := g.resolveRequest(registry.Handle(stack[1]), wasmgen.FnClientOnProgress)
	if !ok {
		return
	}
	client.OnDownloadProgress(client, req, int64(stack[2]), int64(stack[3]))
}

func (g *GuestSim) clientOnData(_ context.Context, mod api.Module, stack []uint64) {
	client, ok := g.resolveClient(registry.Handle(stack[0]), wasmgen.FnClientOnData)
	if !ok || client.OnData == nil {
		return
	}
	req, ok := g.resolveRequest(registry.Handle(stack[1]), wasmgen.FnClientOnData)
	if !ok {
		return
	}
	data, ok := mod.Memory().Read(uint32(stack[2]), uint32(stack[3]))
	if !ok {
		g.log.Warn("guest data out of range",
			zap.Uint32("offset", uint32(stack[2])), zap.Uint32("len", uint32(stack[3])))
		return
	}
	// Guest memory is only stable for the duration of the call; hand the
	// slot a copy it can do anything with.
	client.OnData(client, req, append([]byte(nil), data...))
}

func (g *GuestSim) completionOnFinished(_ context.Context, mod api.Module, stack []uint64) {
	comp, ok := g.resolveCompletion(registry.Handle(stack[0]), wasmgen.FnCompletionOnFinished)
	if !ok || comp.OnFinished == nil {
		return
	}
	units := uint32(stack[2])
	raw, ok := mod.Memory().Read(uint32(stack[1]), units*2)
	if !ok {
		g.log.Warn("guest path out of range",
			zap.Uint32("offset", uint32(stack[1])), zap.Uint32("units", units))
		return
	}
	decoded := make([]uint16, units)
	for i := range decoded {
		decoded[i] = uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
	}
	comp.OnFinished(comp, capi.NewStringFromUnits(decoded), int32(uint32(stack[3])))
}

func (g *GuestSim) resolve(h registry.Handle, caller string) (*capi.Base, bool) {
	base, err := g.pins.Resolve(h)
	if err != nil {
		g.log.Warn("resolve failed", zap.String("host_fn", caller),
			zap.Uint32("handle", uint32(h)), zap.Error(err))
		return nil, false
	}
	return base, true
}

func (g *GuestSim) resolveClient(h registry.Handle, caller string) (*wrap.ClientObject, bool) {
	base, err := g.pins.ResolveKind(h, wrap.KindClient)
	if err != nil {
		g.log.Warn("resolve client failed", zap.String("host_fn", caller),
			zap.Uint32("handle", uint32(h)), zap.Error(err))
		return nil, false
	}
	return (*wrap.ClientObject)(unsafe.Pointer(base)), true
}

func (g *GuestSim) resolveRequest(h registry.Handle, caller string) (*wrap.RequestObject, bool) {
	base, err := g.pins.ResolveKind(h, wrap.KindRequest)
	if err != nil {
		g.log.Warn("resolve request failed", zap.String("host_fn", caller),
			zap.Uint32("handle", uint32(h)), zap.Error(err))
		return nil, false
	}
	return (*wrap.RequestObject)(unsafe.Pointer(base)), true
}

func (g *GuestSim) resolveCompletion(h registry.Handle, caller string) (*wrap.CompletionObject, bool) {
	base, err := g.pins.ResolveKind(h, wrap.KindCompletion)
	if err != nil {
		g.log.Warn("resolve completion failed", zap.String("host_fn", caller),
			zap.Uint32("handle", uint32(h)), zap.Error(err))
		return nil, false
	}
	return (*wrap.CompletionObject)(unsafe.Pointer(base)), true
}
