// Package audithook is a Jobline extension that bridges reconciled
// lifecycle events to an audit trail backend.
//
// Each accepted job change and feed state flip emits a structured audit
// event through the [Recorder] interface. The extension assigns severity
// levels (info for normal operations, warning for requeues and feed
// degradation, critical for failures) and metadata (job name, type,
// status, retry counters, errors).
//
// Register it at wiring time:
//
//	sys, err := setup.Build(tr,
//	    setup.WithExtension(audithook.New(recorder)),
//	)
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobFailed,
//	        audithook.ActionJobCancelled,
//	    ),
//	)
package audithook
