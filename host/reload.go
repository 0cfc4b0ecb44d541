package host

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-hotreload/errors"
	"github.com/wippyai/wasm-hotreload/module"
)

// CheckReload loads the next version when the artifact changed and installs
// it. Only a failed InitAll during a full reset returns an error; that error
// is fatal.
func (h *Host) CheckReload(ctx context.Context) (Action, error) {
	if !h.started || h.stopped {
		return ActionNone, errors.NotInitialized(errors.PhaseLoad, "host")
	}

	modTime, ok := h.loader.ModTime()
	if !ok || modTime.Equal(h.lastModTime) {
		return ActionNone, nil
	}

	version := h.nextVersion
	d, err := h.loader.Load(ctx, version)
	if err != nil {
		h.loadFailed(version, modTime, err)
		return ActionLoadFailed, nil
	}
	h.nextVersion++
	h.failedModTime = time.Time{}

	if d.MemorySize == h.active.MemorySize {
		h.incremental(ctx, d)
		return ActionIncremental, nil
	}
	if err := h.fullReset(ctx, d); err != nil {
		return ActionFullReset, err
	}
	return ActionFullReset, nil
}

func (h *Host) loadFailed(version int, modTime time.Time, err error) {
	h.loadFailures++

	// a broken artifact is retried every frame; log once per rewrite
	level := zap.WarnLevel
	if modTime.Equal(h.failedModTime) {
		level = zap.DebugLevel
	}
	h.failedModTime = modTime

	if errors.IsLocked(err) {
		level = zap.DebugLevel
	}
	if ce := h.log.Check(level, "reload failed, keeping active module"); ce != nil {
		ce.Write(
			zap.Int("version", version),
			zap.Int("active_version", h.active.Version),
			zap.Error(err))
	}

	h.emit(Event{Kind: EventLoadFailed, Version: version, Err: err})
	h.publish()
}

func (h *Host) install(d *module.Descriptor) {
	h.active = d
	h.lastModTime = d.ModTime
	h.lastReload = time.Now()
}

func (h *Host) incremental(ctx context.Context, d *module.Descriptor) {
	old := h.active
	if err := old.API.DeInitPartial(ctx, h.state); err != nil {
		h.log.Error("DeInitPartial failed", zap.Int("version", old.Version), zap.Error(err))
	}

	h.retired.Retire(old)
	h.install(d)

	if err := d.API.InitPartial(ctx, h.state); err != nil {
		h.log.Error("InitPartial failed", zap.Int("version", d.Version), zap.Error(err))
	}

	h.reloads++
	h.log.Info("module reloaded",
		zap.Int("version", d.Version),
		zap.Int("previous_version", old.Version),
		zap.Int("retired", h.retired.Len()))
	h.emit(Event{Kind: EventReloaded, Version: d.Version, MemorySize: d.MemorySize})
	h.publish()
}

func (h *Host) fullReset(ctx context.Context, d *module.Descriptor) error {
	old := h.active
	h.log.Info("state size changed, resetting",
		zap.Int("version", d.Version),
		zap.Uint32("old_size", old.MemorySize),
		zap.Uint32("new_size", d.MemorySize))

	h.drainQueue(ctx)

	if err := old.API.DeInitAll(ctx, h.state); err != nil {
		h.log.Error("DeInitAll failed", zap.Int("version", old.Version), zap.Error(err))
	}
	h.releaseRetired(ctx)
	if err := h.loader.Unload(ctx, old); err != nil {
		h.log.Warn("release failed", zap.Int("version", old.Version), zap.Error(err))
	}

	h.install(d)
	h.state.Free()
	h.state = module.NewState(d.MemorySize)
	h.resets++

	ok, err := d.API.InitAll(ctx, h.state)
	if err != nil || !ok {
		h.initFailed = true
		ierr := errors.InitFailure(d.Version, err)
		h.log.Error("initialization after reset failed", zap.Int("version", d.Version), zap.Error(ierr))
		h.emit(Event{Kind: EventReset, Version: d.Version, MemorySize: d.MemorySize, Err: ierr})
		h.publish()
		return ierr
	}

	h.emit(Event{Kind: EventReset, Version: d.Version, MemorySize: d.MemorySize})
	h.publish()
	return nil
}
