package recording

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/painter/gpucore"
)

// Recording validation errors.
var (
	// ErrDrawOutsidePass is returned when a draw is recorded outside a render pass.
	ErrDrawOutsidePass = errors.New("recording: draw outside render pass")

	// ErrNestedPass is returned when a render pass begins inside another.
	ErrNestedPass = errors.New("recording: nested render pass")

	// ErrNoOpenPass is returned by EndRenderPass without a matching begin.
	ErrNoOpenPass = errors.New("recording: no open render pass")

	// ErrUnclosedPass is returned by Finish while a render pass is open.
	ErrUnclosedPass = errors.New("recording: render pass not ended")

	// ErrNoPipeline is returned when work is recorded before SetPipeline.
	ErrNoPipeline = errors.New("recording: no pipeline bound")

	// ErrTraceInsidePass is returned when rays are dispatched inside a render pass.
	ErrTraceInsidePass = errors.New("recording: trace inside render pass")

	// ErrTransferInsidePass is returned for clears and barriers inside a render pass.
	ErrTransferInsidePass = errors.New("recording: transfer or barrier inside render pass")
)

// serial numbers recordings so that callers can tell a re-recorded stream
// from a resubmitted one.
var serial atomic.Uint64

// Recorder captures GPU commands. It validates pass structure as it goes
// and reports the first violation from Finish.
//
// The Recorder is not safe for concurrent use.
type Recorder struct {
	label    string
	commands []Command

	inPass      bool
	hasPipeline bool
	err         error
}

// NewRecorder creates a new Recorder. The label names the stream in logs
// and errors.
func NewRecorder(label string) *Recorder {
	return &Recorder{
		label:    label,
		commands: make([]Command, 0, 64),
	}
}

func (r *Recorder) fail(err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w (command %d of %q)", err, len(r.commands), r.label)
	}
}

// ClearImage records a full clear of img.
func (r *Recorder) ClearImage(img gpucore.ImageID, c gputypes.Color) {
	if r.inPass {
		r.fail(ErrTransferInsidePass)
	}
	r.commands = append(r.commands, ClearImageCommand{Image: img, Color: c})
}

// Barrier records a global memory barrier.
func (r *Recorder) Barrier(b gpucore.Barrier) {
	if r.inPass {
		r.fail(ErrTransferInsidePass)
	}
	r.commands = append(r.commands, BarrierCommand{Barrier: b})
}

// BeginRenderPass opens a render pass.
func (r *Recorder) BeginRenderPass(p RenderPass) {
	if r.inPass {
		r.fail(ErrNestedPass)
	}
	r.inPass = true
	r.commands = append(r.commands, BeginRenderPassCommand{Pass: p})
}

// EndRenderPass closes the current render pass.
func (r *Recorder) EndRenderPass() {
	if !r.inPass {
		r.fail(ErrNoOpenPass)
	}
	r.inPass = false
	r.commands = append(r.commands, EndRenderPassCommand{})
}

// SetPipeline binds a pipeline.
func (r *Recorder) SetPipeline(p gpucore.PipelineID) {
	r.hasPipeline = true
	r.commands = append(r.commands, SetPipelineCommand{Pipeline: p})
}

// SetGroup binds a descriptor group at a set index.
func (r *Recorder) SetGroup(index uint32, g gpucore.GroupID) {
	r.commands = append(r.commands, SetGroupCommand{Index: index, Group: g})
}

// PushConstants records the per-draw constant block. The data is copied.
func (r *Recorder) PushConstants(data []byte) {
	r.commands = append(r.commands, PushConstantsCommand{Data: append([]byte(nil), data...)})
}

// Draw records a draw of vertexCount vertices.
func (r *Recorder) Draw(vertexCount, instanceCount uint32) {
	switch {
	case !r.inPass:
		r.fail(ErrDrawOutsidePass)
	case !r.hasPipeline:
		r.fail(ErrNoPipeline)
	}
	r.commands = append(r.commands, DrawCommand{VertexCount: vertexCount, InstanceCount: instanceCount})
}

// TraceRays records a ray dispatch of width x height x depth.
func (r *Recorder) TraceRays(t gpucore.ShaderTables, width, height, depth uint32) {
	switch {
	case r.inPass:
		r.fail(ErrTraceInsidePass)
	case !r.hasPipeline:
		r.fail(ErrNoPipeline)
	}
	r.commands = append(r.commands, TraceRaysCommand{Tables: t, Width: width, Height: height, Depth: depth})
}

// Finish returns an immutable Recording containing all recorded commands.
// After calling Finish, the Recorder should not be used again.
func (r *Recorder) Finish() (*Recording, error) {
	if r.inPass {
		r.fail(ErrUnclosedPass)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &Recording{
		label:    r.label,
		serial:   serial.Add(1),
		commands: r.commands,
	}, nil
}

// Recording is an immutable list of recorded commands.
type Recording struct {
	label    string
	serial   uint64
	commands []Command
}

// Label returns the label given to the Recorder.
func (r *Recording) Label() string {
	return r.label
}

// Serial returns a process-unique number identifying this recording.
func (r *Recording) Serial() uint64 {
	return r.serial
}

// Commands returns the recorded commands.
func (r *Recording) Commands() []Command {
	return r.commands
}

// Count returns the number of commands of the given type.
func (r *Recording) Count(t CommandType) int {
	n := 0
	for _, c := range r.commands {
		if c.Type() == t {
			n++
		}
	}
	return n
}

// Executor consumes commands during playback. Devices implement it.
type Executor interface {
	ClearImage(img gpucore.ImageID, c gputypes.Color) error
	Barrier(b gpucore.Barrier) error
	BeginRenderPass(p RenderPass) error
	EndRenderPass() error
	SetPipeline(p gpucore.PipelineID) error
	SetGroup(index uint32, g gpucore.GroupID) error
	PushConstants(data []byte) error
	Draw(vertexCount, instanceCount uint32) error
	TraceRays(t gpucore.ShaderTables, width, height, depth uint32) error
}

// Playback replays the recording into the executor and stops at the first
// error, which is wrapped with the failing command.
func (r *Recording) Playback(exec Executor) error {
	for i, cmd := range r.commands {
		var err error
		switch c := cmd.(type) {
		case ClearImageCommand:
			err = exec.ClearImage(c.Image, c.Color)
		case BarrierCommand:
			err = exec.Barrier(c.Barrier)
		case BeginRenderPassCommand:
			err = exec.BeginRenderPass(c.Pass)
		case EndRenderPassCommand:
			err = exec.EndRenderPass()
		case SetPipelineCommand:
			err = exec.SetPipeline(c.Pipeline)
		case SetGroupCommand:
			err = exec.SetGroup(c.Index, c.Group)
		case PushConstantsCommand:
			err = exec.PushConstants(c.Data)
		case DrawCommand:
			err = exec.Draw(c.VertexCount, c.InstanceCount)
		case TraceRaysCommand:
			err = exec.TraceRays(c.Tables, c.Width, c.Height, c.Depth)
		default:
			err = fmt.Errorf("recording: unknown command %T", cmd)
		}
		if err != nil {
			return fmt.Errorf("%s[%d] %s: %w", r.label, i, cmd.Type(), err)
		}
	}
	return nil
}
