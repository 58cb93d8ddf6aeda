package core

// memoryStage drives the single data memory port. Each cycle it either
// advances the D-cache access in flight or starts work for the oldest
// eligible load: store-to-load forwarding when a resolved older store
// fully covers the load, a D-cache read otherwise. Stores never touch
// the D-cache here; they write at commit.
func (e *Engine) memoryStage() {
	if e.memBusy > 0 {
		e.memBusy--
		e.metrics.Stalls[StallDCacheMiss]++
		if e.memBusy == 0 && e.memInFlight {
			e.cdb.Push(Message{SeqNo: e.memSeq, Tag: e.memROB, Value: e.memValue})
			e.lsq.Entry(e.memLSQ).Done = true
			e.memInFlight = false
		}
		return
	}

	for _, i := range e.lsq.Indices() {
		ent := e.lsq.Entry(i)

		if ent.IsStore {
			if !ent.AddrValid {
				// Loads may not run ahead of an older store with an
				// unresolved address.
				return
			}
			continue
		}

		if !ent.AddrValid {
			// In-order address resolution: younger loads wait.
			return
		}
		if ent.Done {
			continue
		}

		e.serviceLoad(i, ent)
		// One memory port: at most one load serviced per cycle.
		return
	}
}

// serviceLoad obtains the load's value by forwarding or D-cache access.
func (e *Engine) serviceLoad(idx int, ent *LSQEntry) {
	value, covered, partial := e.searchForwarding(idx, ent)
	if covered {
		// Forwarding is a 1-cycle path: the value broadcasts this
		// cycle without touching the D-cache.
		e.cdb.Push(Message{SeqNo: ent.SeqNo, Tag: ent.ROBIndex, Value: value})
		ent.Done = true
		return
	}
	if partial {
		// A partially overlapping older store blocks the load until
		// that store commits.
		e.metrics.Stalls[StallRawHazard]++
		return
	}

	res := e.dcache.Read(ent.Addr, ent.Size)
	loaded := signExtend(res.Data, ent.Size)
	if res.Hit {
		e.cdb.Push(Message{SeqNo: ent.SeqNo, Tag: ent.ROBIndex, Value: loaded})
		ent.Done = true
		return
	}

	// Miss: the port stays busy for the remaining penalty cycles.
	e.metrics.Stalls[StallDCacheMiss]++
	e.memBusy = res.Latency - 1
	e.memInFlight = true
	e.memSeq = ent.SeqNo
	e.memROB = ent.ROBIndex
	e.memLSQ = idx
	e.memValue = loaded
	if e.memBusy == 0 {
		// Degenerate one-cycle penalty completes immediately.
		e.cdb.Push(Message{SeqNo: ent.SeqNo, Tag: ent.ROBIndex, Value: loaded})
		e.lsq.Entry(idx).Done = true
		e.memInFlight = false
	}
}

// searchForwarding walks the LSQ backward from the load looking for the
// newest older store that overlaps it. A store fully covering the load
// supplies the value; a partial overlap blocks the load.
func (e *Engine) searchForwarding(loadIdx int, load *LSQEntry) (value uint64, covered, partial bool) {
	indices := e.lsq.Indices()

	pos := -1
	for i, idx := range indices {
		if idx == loadIdx {
			pos = i
			break
		}
	}

	for i := pos - 1; i >= 0; i-- {
		st := e.lsq.Entry(indices[i])
		if !st.IsStore {
			continue
		}

		loadLo, loadHi := load.Addr, load.Addr+uint64(load.Size)
		stLo, stHi := st.Addr, st.Addr+uint64(st.Size)
		if loadHi <= stLo || stHi <= loadLo {
			continue // disjoint; keep searching older stores
		}
		if stLo <= loadLo && loadHi <= stHi {
			shift := (loadLo - stLo) * 8
			return signExtend(st.Value>>shift, load.Size), true, false
		}
		return 0, false, true
	}

	return 0, false, false
}

// signExtend widens a loaded value of the given byte size to the 64-bit
// datapath.
func signExtend(v uint64, size int) uint64 {
	switch size {
	case 1:
		return uint64(int64(int8(v)))
	case 2:
		return uint64(int64(int16(v)))
	case 4:
		return uint64(int64(int32(v)))
	}
	return v
}
