package bcread

import (
	"fmt"

	"bcread/internal/ir"
)

var _ ir.Materializer = (*Reader)(nil)

// IsMaterializable reports whether gv is a function declaration with a
// deferred body in the stream.
func (r *Reader) IsMaterializable(gv ir.GlobalValue) bool {
	fn, ok := gv.(*ir.Function)
	if !ok {
		return false
	}
	_, deferred := r.deferredFunctionInfo[fn]
	return fn.IsDeclaration() && deferred
}

// Materialize reads the deferred body of gv from the stream. Requests for
// values that are not materializable functions are ignored.
func (r *Reader) Materialize(gv ir.GlobalValue) error {
	fn, ok := gv.(*ir.Function)
	if !ok || !r.IsMaterializable(fn) {
		return nil
	}

	offset := r.deferredFunctionInfo[fn]
	// A streamed input may not have reached this body yet; push the module
	// parse forward until it surfaces.
	if offset == 0 {
		if err := r.findFunctionInStream(fn); err != nil {
			return err
		}
		offset = r.deferredFunctionInfo[fn]
	}

	r.cursor.JumpToBit(offset)
	if err := r.parseFunctionBody(fn); err != nil {
		return err
	}

	// Calls to upgraded intrinsics inside this body move to the new
	// declarations right away.
	for _, pair := range r.upgradedIntrinsics {
		if pair.old == pair.new {
			continue
		}
		for _, u := range ir.Uses(pair.old) {
			if call, ok := u.User.(*ir.Instruction); ok && call.Op == ir.OpCall {
				upgradeIntrinsicCall(r.ctx, call, pair.new)
			}
		}
	}
	return nil
}

// DeferredOffsets returns the recorded body offsets by function name, for
// sidecar indexing. Streamed inputs may still hold zero offsets for bodies
// the parse has not reached.
func (r *Reader) DeferredOffsets() map[string]uint64 {
	out := make(map[string]uint64, len(r.deferredFunctionInfo))
	for fn, off := range r.deferredFunctionInfo {
		out[fn.Name()] = off
	}
	return out
}

// findFunctionInStream resumes the paused module parse until the body
// offset of fn has been recorded.
func (r *Reader) findFunctionInStream(fn *ir.Function) error {
	for r.deferredFunctionInfo[fn] == 0 {
		if r.cursor.AtEnd() {
			return fmt.Errorf("function %q: %w", fn.Name(), ErrCouldNotFindFunctionInStream)
		}
		if err := r.parseModule(true); err != nil {
			return err
		}
	}
	return nil
}

// Dematerialize drops the body of gv; the recorded stream offset allows it
// to be read again.
func (r *Reader) Dematerialize(gv ir.GlobalValue) {
	fn, ok := gv.(*ir.Function)
	if !ok || fn.IsDeclaration() {
		return
	}
	if _, deferred := r.deferredFunctionInfo[fn]; !deferred {
		return
	}
	fn.DeleteBody()
}

// MaterializeAll reads every deferred body, then finishes the legacy
// rewrites that need the whole module: intrinsic replacement, the
// exception-handling upgrade, and debug-intrinsic cleanup.
func (r *Reader) MaterializeAll() error {
	for _, fn := range r.module.Funcs {
		if r.IsMaterializable(fn) {
			if err := r.Materialize(fn); err != nil {
				return err
			}
		}
	}

	for _, pair := range r.upgradedIntrinsics {
		if pair.old == pair.new {
			continue
		}
		for _, u := range ir.Uses(pair.old) {
			if call, ok := u.User.(*ir.Instruction); ok && call.Op == ir.OpCall {
				upgradeIntrinsicCall(r.ctx, call, pair.new)
			}
		}
		if ir.HasUses(pair.old) {
			ir.ReplaceAllUsesWith(pair.old, pair.new)
		}
		pair.old.EraseFromParent()
	}
	r.upgradedIntrinsics = nil

	if err := upgradeExceptionHandling(r.module); err != nil {
		return err
	}
	checkDebugInfoIntrinsics(r.module)
	return nil
}
