// Package recording captures GPU work as typed command streams.
//
// A frame slot's command stream is recorded once and then submitted
// unchanged on every tick until something invalidates it. Recording the
// stream as inspectable command structs (instead of encoding straight into
// a device) is what lets every device in the backend registry execute the
// same frame graph, and lets tests assert on the exact pass sequence.
//
// # Architecture
//
// The system follows a Command Pattern with three main components:
//
//   - Recorder: captures clears, barriers, render passes and trace dispatches
//   - Recording: an immutable command list
//   - Executor: a device-side consumer of commands (see Recording.Playback)
//
// # Basic Usage
//
//	rec := recording.NewRecorder("frame 0")
//	rec.ClearImage(paint, gputypes.Color{})
//	rec.Barrier(gpucore.Barrier{
//	    SrcStage: gpucore.SyncTransfer, SrcAccess: gpucore.AccessTransferWrite,
//	    DstStage: gpucore.SyncRayTracing, DstAccess: gpucore.AccessShaderWrite,
//	})
//	rec.SetPipeline(paintPipeline)
//	rec.SetGroup(0, rasterGroup)
//	rec.TraceRays(tables, 64, 64, 1)
//	r, err := rec.Finish()
//
// # Validation
//
// The Recorder checks structural rules while recording: draws only inside
// a render pass, no nested passes, trace dispatches outside passes, and a
// pipeline bound before any draw or dispatch. The first violation is
// returned by Finish.
package recording
