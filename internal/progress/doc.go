// Package progress defines the outbound channel long-running catalog work
// uses to report progress and ad hoc text results.
//
// A Reporter receives Start/SetMax/Tick/Reset/Stop calls from synchronization
// and set regeneration. A Notifier receives short textual results such as
// tag listings. Log-backed and no-op implementations are provided; front ends
// supply their own.
package progress
