// Package hydrator turns a stream of post identifiers into full records.
//
// Each batch is looked up in a single call and retried until it resolves:
// returned records go to the record sink and identifiers the API did not
// return go to the failure sink. When the server refuses a call the
// hydrator asks for the endpoint's rate limit status and sleeps until the
// window resets. Other failures are retried after the policy's delay.
//
// A run ends when the input is exhausted or its context is cancelled. A
// cancelled run still resolves the batch it is working on, so every
// identifier read ends up in exactly one sink.
package hydrator
