package adm

import "time"

// DataIsRecorded delivers the quantum the external device just wrote into
// the recording region. A quantum that cannot be delivered is dropped with
// a diagnostic; the next call is an independent attempt.
func (d *Device) DataIsRecorded() {
	start := time.Now()

	sink := d.currentSink()
	if sink == nil {
		d.dropRecording("no_sink", func() {
			d.logger.Error("data recorded before an audio buffer was attached")
		})
		return
	}

	var setErr error
	if !d.recBuf.With(func(data []byte, frames int) {
		setErr = sink.SetRecordedBuffer(data, frames)
	}) {
		d.dropRecording("no_buffer", func() {
			d.logger.Error("data recorded before the recording sample rate was set")
		})
		return
	}
	if setErr != nil {
		d.dropRecording("set_buffer", func() {
			d.logger.Error("sink rejected recorded buffer", "error", setErr)
		})
		return
	}

	playDelay, err := d.PlayoutDelay()
	if err != nil {
		d.dropRecording("playout_delay", func() {
			d.logger.Error("failed to retrieve the playout delay", "error", err)
		})
		return
	}
	recDelay, err := d.RecordingDelay()
	if err != nil {
		d.dropRecording("recording_delay", func() {
			d.logger.Error("failed to retrieve the recording delay", "error", err)
		})
		return
	}

	sink.SetVQEData(playDelay, recDelay, 0)
	if err := sink.DeliverRecordedData(); err != nil {
		d.dropRecording("deliver", func() {
			d.logger.Error("delivering recorded data failed", "error", err)
		})
		return
	}

	GetMetrics().RecordQuantum(d.id, DirectionRecording, time.Since(start))
}

func (d *Device) dropRecording(reason string, log func()) {
	GetMetrics().RecordDeliveryFailure(d.id, DirectionRecording, reason)
	d.recordingLog.Do(log)
}

// GetPlayoutData fills the playout region with one quantum from the sink.
// When the sink produces fewer frames than requested the call is an
// underrun: the region keeps its previous contents unless the underrun
// policy is UnderrunSilence.
func (d *Device) GetPlayoutData() {
	start := time.Now()

	sink := d.currentSink()
	if sink == nil {
		GetMetrics().RecordDeliveryFailure(d.id, DirectionPlayout, "no_sink")
		d.noSinkLog.Do(func() {
			d.logger.Error("playout data requested before an audio buffer was attached")
		})
		return
	}

	delivered := false
	configured := d.playBuf.With(func(data []byte, frames int) {
		n, err := sink.RequestPlayoutData(frames)
		if err != nil || n < frames {
			d.underrun(data, frames, n, err)
			return
		}
		if n > frames {
			d.violateInvariant(&InvariantError{Op: "RequestPlayoutData", Expected: frames, Got: n})
			return
		}

		got, err := sink.GetPlayoutData(data)
		if err != nil {
			GetMetrics().RecordDeliveryFailure(d.id, DirectionPlayout, "get_playout_data")
			d.underrunLog.Do(func() {
				d.logger.Error("copying playout data failed", "error", err)
			})
			return
		}
		if got != frames {
			d.violateInvariant(&InvariantError{Op: "GetPlayoutData", Expected: frames, Got: got})
			return
		}
		delivered = true
	})
	if !configured {
		GetMetrics().RecordDeliveryFailure(d.id, DirectionPlayout, "no_buffer")
		d.underrunLog.Do(func() {
			d.logger.Error("playout data requested before the playout sample rate was set")
		})
		return
	}
	if delivered {
		GetMetrics().RecordQuantum(d.id, DirectionPlayout, time.Since(start))
	}
}

// underrun runs with the playout buffer lock held.
func (d *Device) underrun(data []byte, requested, got int, err error) {
	GetMetrics().RecordUnderrun(d.id)
	if d.policy == UnderrunSilence {
		clear(data)
	}
	d.underrunLog.Do(func() {
		d.logger.Warn("playout underrun",
			"requested_frames", requested,
			"frames", got,
			"policy", d.policy.String(),
			"error", err)
	})
}
