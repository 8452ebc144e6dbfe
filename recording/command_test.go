package recording

import (
	"testing"

	"github.com/gogpu/painter/gpucore"
)

func TestCommandType_String(t *testing.T) {
	tests := []struct {
		ct   CommandType
		want string
	}{
		{CmdClearImage, "ClearImage"},
		{CmdBarrier, "Barrier"},
		{CmdBeginRenderPass, "BeginRenderPass"},
		{CmdEndRenderPass, "EndRenderPass"},
		{CmdSetPipeline, "SetPipeline"},
		{CmdSetGroup, "SetGroup"},
		{CmdPushConstants, "PushConstants"},
		{CmdDraw, "Draw"},
		{CmdTraceRays, "TraceRays"},
		{CommandType(254), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.ct.String(); got != tt.want {
				t.Errorf("CommandType.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommandInterface(t *testing.T) {
	commands := []struct {
		cmd  Command
		want CommandType
	}{
		{ClearImageCommand{}, CmdClearImage},
		{BarrierCommand{}, CmdBarrier},
		{BeginRenderPassCommand{}, CmdBeginRenderPass},
		{EndRenderPassCommand{}, CmdEndRenderPass},
		{SetPipelineCommand{Pipeline: gpucore.PipelineID(1)}, CmdSetPipeline},
		{SetGroupCommand{}, CmdSetGroup},
		{PushConstantsCommand{}, CmdPushConstants},
		{DrawCommand{VertexCount: 3}, CmdDraw},
		{TraceRaysCommand{Width: 1, Height: 1, Depth: 1}, CmdTraceRays},
	}
	for _, c := range commands {
		if got := c.cmd.Type(); got != c.want {
			t.Errorf("%T.Type() = %v, want %v", c.cmd, got, c.want)
		}
	}
}
