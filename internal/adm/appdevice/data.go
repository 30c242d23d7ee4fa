package appdevice

// DataIsRecorded copies captured PCM into the recording buffer and hands
// every completed quantum to the adapter. A trailing partial quantum is
// kept and completed by the next call.
func (h *Host) DataIsRecorded(p []byte) error {
	if !h.recMu.TryLock() {
		return ErrConcurrentAccess
	}
	defer h.recMu.Unlock()

	cb := h.cb()
	if cb == nil {
		return ErrNotWrapped
	}
	region := h.recRegion.Load()
	if region == nil || !region.Valid() {
		return ErrNoBuffer
	}
	if region.Generation != h.recGen {
		h.recGen = region.Generation
		h.recPos = 0
	}

	buf := region.Bytes
	for len(p) > 0 {
		n := copy(buf[h.recPos:], p)
		p = p[n:]
		h.recPos += n
		if h.recPos == len(buf) {
			cb.DataIsRecorded()
			h.recPos = 0
		}
	}
	return nil
}

// GetPlayoutData fills p from the playout buffer, asking the adapter for a
// new quantum whenever the buffer is drained.
func (h *Host) GetPlayoutData(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if !h.playMu.TryLock() {
		return ErrConcurrentAccess
	}
	defer h.playMu.Unlock()

	cb := h.cb()
	if cb == nil {
		return ErrNotWrapped
	}
	region := h.playRegion.Load()
	if region == nil || !region.Valid() {
		return ErrNoBuffer
	}
	if region.Generation != h.playGen {
		h.playGen = region.Generation
		h.playPos = -1
	}

	buf := region.Bytes
	for len(p) > 0 {
		if h.playPos < 0 || h.playPos >= len(buf) {
			cb.GetPlayoutData()
			h.playPos = 0
		}
		n := copy(p, buf[h.playPos:])
		p = p[n:]
		h.playPos += n
	}
	return nil
}
