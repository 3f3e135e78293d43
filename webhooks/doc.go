// Package webhooks receives change notifications from the external record
// store and turns them into background sync runs.
//
// Notifications carry no change data. Each one is parsed, optionally
// verified against the subscription MAC secret, and queued by subscription
// id. A subscription that is already pending is not queued twice; the
// Worker drains the queue and hands each id to the sync processor, which
// pulls the payload feed from the stored cursor.
package webhooks
