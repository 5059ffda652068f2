// Package timeouts defines shared timeout constants so the durations used by
// the command and its background loops stay discoverable in one place.
package timeouts

import "time"

// SMTPDial caps the wait time when connecting to the mail relay.
const SMTPDial = 10 * time.Second

// MailPoll is the default interval between outbox dispatch passes.
const MailPoll = 10 * time.Second

// MailLease is how long a dispatcher owns a leased outbox message before
// another pass may pick it up again.
const MailLease = time.Minute

// Shutdown limits how long telemetry flushing may take on exit.
const Shutdown = 5 * time.Second
