package transfer

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/chathack/internal/observability"
	"github.com/danmuck/chathack/internal/protocol/frame"
)

// DefaultReassemblySize is the per-file buffer flushed to disk when full.
const DefaultReassemblySize = 512 * 1024

// Sink creates output files, picking a fresh name if one is taken.
type Sink interface {
	Create(name string) (io.WriteCloser, string, error)
}

// Result reports a finished or abandoned incoming file.
type Result struct {
	FileID uint32
	Name   string
	Size   uint32
	Err    error
}

type reassembly struct {
	id       uint32
	name     string
	size     uint32
	received uint32
	capacity int
	primary  []byte
	overflow []byte
	out      io.WriteCloser
}

func (a *reassembly) complete() bool {
	return a.received == a.size
}

// add buffers data; the primary buffer reaches the sink only when it is
// full or the file is complete.
func (a *reassembly) add(data []byte) error {
	if uint64(a.received)+uint64(len(data)) > uint64(a.size) {
		return fmt.Errorf("%w: file %d", ErrOverrun, a.id)
	}
	room := a.capacity - len(a.primary)
	if len(data) > room {
		a.primary = append(a.primary, data[:room]...)
		a.overflow = append(a.overflow, data[room:]...)
	} else {
		a.primary = append(a.primary, data...)
	}
	a.received += uint32(len(data))
	for len(a.primary) == a.capacity || (a.complete() && len(a.primary) > 0) {
		if err := a.flush(); err != nil {
			return err
		}
	}
	return nil
}

// flush writes the primary buffer and promotes the overflow into it.
func (a *reassembly) flush() error {
	if _, err := a.out.Write(a.primary); err != nil {
		return err
	}
	observability.RecordTransferBytes("receive", len(a.primary))
	n := min(len(a.overflow), a.capacity)
	a.primary = append(a.primary[:0], a.overflow[:n]...)
	a.overflow = append(a.overflow[:0], a.overflow[n:]...)
	return nil
}

// Receiver reassembles every incoming file of one connection. It is
// confined to the reactor loop.
type Receiver struct {
	sink     Sink
	capacity int
	files    map[uint32]*reassembly
	done     func(Result)
}

// NewReceiver buffers up to capacity bytes per file. done, if set, is
// called once per file that completes or is abandoned.
func NewReceiver(sink Sink, capacity int, done func(Result)) *Receiver {
	if capacity <= 0 {
		capacity = DefaultReassemblySize
	}
	return &Receiver{
		sink:     sink,
		capacity: capacity,
		files:    make(map[uint32]*reassembly),
		done:     done,
	}
}

// Active is the number of files in progress.
func (r *Receiver) Active() int { return len(r.files) }

// Init opens the output for a newly announced file. Re-announcing a file
// already in progress is ignored.
func (r *Receiver) Init(f frame.FileInit) {
	if _, ok := r.files[f.FileID]; ok {
		log.Warn().Uint32("file_id", f.FileID).Str("file", f.Name).Msg("duplicate file init ignored")
		return
	}
	out, name, err := r.sink.Create(f.Name)
	if err != nil {
		log.Error().Str("file", f.Name).Err(err).Msg("cannot create output file")
		r.finish(Result{FileID: f.FileID, Name: f.Name, Size: f.Length, Err: err}, "failed")
		return
	}
	a := &reassembly{
		id:       f.FileID,
		name:     name,
		size:     f.Length,
		capacity: r.capacity,
		primary:  make([]byte, 0, r.capacity),
		out:      out,
	}
	if a.complete() {
		r.close(a, nil)
		return
	}
	r.files[f.FileID] = a
	log.Debug().Uint32("file_id", f.FileID).Str("file", name).Uint32("size", f.Length).Msg("receiving file")
}

// Chunk appends data to its file. Chunks for unknown files are ignored.
func (r *Receiver) Chunk(f frame.FileChunk) {
	a, ok := r.files[f.FileID]
	if !ok {
		log.Debug().Uint32("file_id", f.FileID).Msg("chunk for unknown file ignored")
		return
	}
	if err := a.add(f.Data); err != nil {
		delete(r.files, f.FileID)
		r.close(a, err)
		return
	}
	if a.complete() {
		delete(r.files, f.FileID)
		r.close(a, nil)
	}
}

// Abort abandons every file in progress, as when the connection closes.
func (r *Receiver) Abort() {
	for id, a := range r.files {
		delete(r.files, id)
		r.close(a, ErrInterrupted)
	}
}

func (r *Receiver) close(a *reassembly, err error) {
	if cerr := a.out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	outcome := "complete"
	if err != nil {
		outcome = "aborted"
		log.Warn().Uint32("file_id", a.id).Str("file", a.name).Err(err).Msg("receive abandoned")
	} else {
		log.Info().Uint32("file_id", a.id).Str("file", a.name).Uint32("size", a.size).Msg("file received")
	}
	r.finish(Result{FileID: a.id, Name: a.name, Size: a.size, Err: err}, outcome)
}

func (r *Receiver) finish(res Result, outcome string) {
	observability.RecordTransfer("receive", outcome)
	if r.done != nil {
		r.done(res)
	}
}
