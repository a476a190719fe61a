package dataplane

import "sync"

// Handler receives dispatched data-plane frames for one stream.
type Handler func(Frame)

// GapHandler is notified when a stream's frameIndex skips ahead, meaning
// one or more frames were lost in transit.
type GapHandler func(streamID uint32, missed uint32)

// DropHandler is notified when a stream's backpressure cap is exceeded and
// the oldest queued frame was dropped to make room for a new one.
type DropHandler func(streamID uint32)

type subscription struct {
	id      uint64
	handler Handler
	queue   chan Frame
	done    chan struct{}
}

type streamState struct {
	subs           []*subscription
	lastFrameIndex uint32
	haveIndex      bool
	assembly       *panAssembly
}

type panAssembly struct {
	total uint32
	bins  []uint16
	got   uint32
}

// Demux fans out decoded data-plane frames to per-stream subscribers,
// detects frame-index gaps, reassembles panadapter spectra from partial bin
// slices, and applies a bounded per-stream backpressure queue so one slow
// subscriber cannot stall ingestion for the rest.
type Demux struct {
	mu      sync.Mutex
	streams map[uint32]*streamState
	nextID  uint64
	cap     int

	OnGap  GapHandler
	OnDrop DropHandler
}

// NewDemux creates a demultiplexer with the given per-stream queue depth.
// capacity <= 0 defaults to 64.
func NewDemux(capacity int) *Demux {
	if capacity <= 0 {
		capacity = 64
	}
	return &Demux{streams: map[uint32]*streamState{}, cap: capacity}
}

// Subscribe registers handler for frames (including reassembled panadapter
// spectra) on streamID. The handler runs on its own goroutine, fed by a
// bounded queue; the returned cancel function stops delivery.
func (d *Demux) Subscribe(streamID uint32, handler Handler) (cancel func()) {
	d.mu.Lock()
	st := d.stream(streamID)
	id := d.nextID
	d.nextID++
	sub := &subscription{
		id:      id,
		handler: handler,
		queue:   make(chan Frame, d.cap),
		done:    make(chan struct{}),
	}
	st.subs = append(st.subs, sub)
	d.mu.Unlock()

	go func() {
		for {
			select {
			case f := <-sub.queue:
				sub.handler(f)
			case <-sub.done:
				return
			}
		}
	}()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		st := d.streams[streamID]
		if st == nil {
			return
		}
		for i, s := range st.subs {
			if s.id == id {
				st.subs = append(st.subs[:i], st.subs[i+1:]...)
				close(s.done)
				break
			}
		}
	}
}

func (d *Demux) stream(streamID uint32) *streamState {
	st, ok := d.streams[streamID]
	if !ok {
		st = &streamState{}
		d.streams[streamID] = st
	}
	return st
}

// Ingest parses one raw datagram and dispatches it (and, for completed
// panadapter spectra, a reassembled composite frame) to every subscriber of
// its stream. Truncated or unrecognized datagrams are returned as an error
// and otherwise ignored — they never reach a subscriber half-parsed.
func (d *Demux) Ingest(raw []byte) error {
	frame, err := ParseFrame(raw)
	if err != nil {
		return err
	}

	d.mu.Lock()
	st := d.stream(frame.Header.StreamID)
	d.checkGap(frame.Header.StreamID, st, frame.Header.FrameIndex)

	var composite *Frame
	if p, ok := frame.Payload.(*PanadapterPayload); ok {
		if c := assemble(st, frame.Header, p); c != nil {
			composite = c
		}
	}
	subs := append([]*subscription(nil), st.subs...)
	d.mu.Unlock()

	d.dispatch(frame.Header.StreamID, subs, frame)
	if composite != nil {
		d.dispatch(frame.Header.StreamID, subs, *composite)
	}
	return nil
}

func (d *Demux) checkGap(streamID uint32, st *streamState, index uint32) {
	if !st.haveIndex {
		st.lastFrameIndex = index
		st.haveIndex = true
		return
	}
	if index > st.lastFrameIndex+1 {
		missed := index - st.lastFrameIndex - 1
		if d.OnGap != nil {
			d.OnGap(streamID, missed)
		}
	}
	if index > st.lastFrameIndex || index < st.lastFrameIndex {
		st.lastFrameIndex = index
	}
}

// assemble folds one partial panadapter bin slice into the stream's
// in-progress spectrum, completing it once startBinIndex+numBins covers the
// declared total.
func assemble(st *streamState, h Header, p *PanadapterPayload) *Frame {
	total := uint32(p.TotalBins)
	start := uint32(p.StartBinIndex)
	num := uint32(p.NumBins)

	if st.assembly == nil || st.assembly.total != total {
		st.assembly = &panAssembly{total: total, bins: make([]uint16, total)}
	}
	a := st.assembly
	end := start + num
	if end > a.total {
		end = a.total
	}
	for i := start; i < end; i++ {
		if i-start >= uint32(len(p.Bins)) {
			break
		}
		a.bins[i] = p.Bins[i-start]
	}
	a.got += num
	if start+num < a.total {
		return nil
	}

	complete := &PanadapterPayload{
		StartBinIndex: 0,
		NumBins:       p.TotalBins,
		TotalBins:     p.TotalBins,
		Bins:          append([]uint16(nil), a.bins...),
	}
	st.assembly = nil
	return &Frame{Header: h, Payload: complete}
}

// dispatch enqueues frame on every subscriber's queue, dropping the oldest
// queued frame for any subscriber whose queue is already full.
func (d *Demux) dispatch(streamID uint32, subs []*subscription, frame Frame) {
	for _, s := range subs {
		select {
		case s.queue <- frame:
		default:
			select {
			case <-s.queue:
			default:
			}
			select {
			case s.queue <- frame:
			default:
			}
			if d.OnDrop != nil {
				d.OnDrop(streamID)
			}
		}
	}
}
