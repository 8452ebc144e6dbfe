package recording

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/painter/gpucore"
)

// CommandType identifies the type of a command.
type CommandType uint8

const (
	// Transfer commands
	CmdClearImage CommandType = iota // Clear an image outside a pass

	// Synchronization commands
	CmdBarrier // Global memory barrier

	// Pass commands
	CmdBeginRenderPass // Begin a render pass on color (and depth) attachments
	CmdEndRenderPass   // End the current render pass

	// State commands
	CmdSetPipeline   // Bind a raster or ray-trace pipeline
	CmdSetGroup      // Bind a descriptor group at an index
	CmdPushConstants // Set the per-draw constant block

	// Work commands
	CmdDraw      // Draw vertices
	CmdTraceRays // Dispatch rays
)

// commandTypeNames maps CommandType values to their string representation.
var commandTypeNames = [...]string{
	CmdClearImage:      "ClearImage",
	CmdBarrier:         "Barrier",
	CmdBeginRenderPass: "BeginRenderPass",
	CmdEndRenderPass:   "EndRenderPass",
	CmdSetPipeline:     "SetPipeline",
	CmdSetGroup:        "SetGroup",
	CmdPushConstants:   "PushConstants",
	CmdDraw:            "Draw",
	CmdTraceRays:       "TraceRays",
}

// String returns the string representation of a CommandType.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is the interface implemented by all command types.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType
}

// --------------------------------------------------------------------------
// Transfer and synchronization
// --------------------------------------------------------------------------

// ClearImageCommand clears a whole image to a color.
type ClearImageCommand struct {
	Image gpucore.ImageID
	Color gputypes.Color
}

// Type implements Command.
func (ClearImageCommand) Type() CommandType { return CmdClearImage }

// BarrierCommand makes earlier writes visible to later accesses.
type BarrierCommand struct {
	Barrier gpucore.Barrier
}

// Type implements Command.
func (BarrierCommand) Type() CommandType { return CmdBarrier }

// --------------------------------------------------------------------------
// Render passes
// --------------------------------------------------------------------------

// RenderPass describes the attachments of a render pass.
type RenderPass struct {
	Label string

	Color      gpucore.ImageID
	ColorLoad  gputypes.LoadOp
	ClearColor gputypes.Color

	// Depth is optional; InvalidID means no depth attachment.
	Depth      gpucore.ImageID
	DepthLoad  gputypes.LoadOp
	ClearDepth float32
}

// BeginRenderPassCommand begins a render pass.
type BeginRenderPassCommand struct {
	Pass RenderPass
}

// Type implements Command.
func (BeginRenderPassCommand) Type() CommandType { return CmdBeginRenderPass }

// EndRenderPassCommand ends the current render pass.
type EndRenderPassCommand struct{}

// Type implements Command.
func (EndRenderPassCommand) Type() CommandType { return CmdEndRenderPass }

// --------------------------------------------------------------------------
// State
// --------------------------------------------------------------------------

// SetPipelineCommand binds a pipeline for subsequent draws or dispatches.
type SetPipelineCommand struct {
	Pipeline gpucore.PipelineID
}

// Type implements Command.
func (SetPipelineCommand) Type() CommandType { return CmdSetPipeline }

// SetGroupCommand binds a descriptor group at a set index.
type SetGroupCommand struct {
	Index uint32
	Group gpucore.GroupID
}

// Type implements Command.
func (SetGroupCommand) Type() CommandType { return CmdSetGroup }

// PushConstantsCommand sets the per-draw constant block.
type PushConstantsCommand struct {
	Data []byte
}

// Type implements Command.
func (PushConstantsCommand) Type() CommandType { return CmdPushConstants }

// --------------------------------------------------------------------------
// Work
// --------------------------------------------------------------------------

// DrawCommand draws VertexCount vertices. Vertex data is pulled from bound
// storage by the vertex stage.
type DrawCommand struct {
	VertexCount   uint32
	InstanceCount uint32
}

// Type implements Command.
func (DrawCommand) Type() CommandType { return CmdDraw }

// TraceRaysCommand dispatches Width x Height x Depth rays through the bound
// ray-trace pipeline using the given dispatch table regions.
type TraceRaysCommand struct {
	Tables gpucore.ShaderTables
	Width  uint32
	Height uint32
	Depth  uint32
}

// Type implements Command.
func (TraceRaysCommand) Type() CommandType { return CmdTraceRays }
