package gzguard

// ElementSize implements spec.md §4.7's element_size(addr) -> (zone,
// size) | not-mine, the engine's reverse-lookup entry point: given any
// address inside a tracked allocation, report the owning zone and its
// element size. The caller does not need to already know which zone or
// allocation an address belongs to, which is what makes this the
// collaborator the surrounding pool calls when it receives an unknown
// pointer (spec.md §2, "used by diagnostics and by the zone layer when
// identifying an unknown pointer").
func (e *Engine) ElementSize(addr uintptr) (zone *Zone, size uint32, ok bool) {
	if !e.cfg.Enabled || !e.arena.Contains(addr) {
		return nil, 0, false
	}

	entryStart, entryEnd, atomicEntry, found := e.arena.LookupEntry(addr)
	if !found {
		fatal(e.logger, CategoryMapEntry, addr, "no VA-arena map entry covers address", nil, nil)
	}

	if !atomicEntry {
		fatal(e.logger, CategoryMapEntry, addr, "VA-arena map entry not atomic", nil, nil)
	}

	h := readHeaderFromEntry(e.logger, entryStart, entryEnd, e.cfg.LayoutMode)

	if h.sig != signature {
		fatal(e.logger, CategorySignature, addr, "header signature mismatch during reverse lookup", uint32(signature), h.sig)
	}

	owner := zoneByID(h.zoneID)
	if owner == nil || !e.cfg.Tracked(owner.Name(), owner.ElementSize()) {
		fatal(e.logger, CategoryZoneMismatch, addr, "reverse lookup resolved to an untracked zone", true, false)
	}

	return owner, h.elemSize, true
}
