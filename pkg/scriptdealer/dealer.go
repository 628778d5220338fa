// Package scriptdealer defines the narrow contract the lifecycle controller
// needs from the scripting engine: where the application directory lives,
// and how to register a per-database context initializer. The scripting
// contexts themselves are out of scope.
package scriptdealer

import "github.com/vocbase/vocd/pkg/vocbase"

// ContextInitializer is invoked once per script context to bind a
// database's state into it. Its implementation lives entirely outside the
// lifecycle core.
type ContextInitializer func(vocbaseRecord *vocbase.Record)

// Dealer is the consumed contract.
type Dealer interface {
	AppPath() string
	DefineContextUpdate(initializer ContextInitializer, database *vocbase.Record)
}

// StaticDealer is a fixed-AppPath Dealer that records every registered
// initializer, useful for tests and for deployments that run without a
// scripting subsystem at all.
type StaticDealer struct {
	appPath       string
	registrations []registration
}

type registration struct {
	initializer ContextInitializer
	database    *vocbase.Record
}

func NewStaticDealer(appPath string) *StaticDealer {
	return &StaticDealer{appPath: appPath}
}

func (d *StaticDealer) AppPath() string {
	return d.appPath
}

func (d *StaticDealer) DefineContextUpdate(initializer ContextInitializer, database *vocbase.Record) {
	d.registrations = append(d.registrations, registration{initializer: initializer, database: database})
}

// Registration is one recorded DefineContextUpdate call.
type Registration struct {
	Database *vocbase.Record
}

// Registrations returns every DefineContextUpdate call recorded so far, in
// order.
func (d *StaticDealer) Registrations() []Registration {
	out := make([]Registration, len(d.registrations))
	for i, r := range d.registrations {
		out[i] = Registration{Database: r.database}
	}
	return out
}
