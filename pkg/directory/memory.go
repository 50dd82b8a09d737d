package directory

import (
	"context"
	"sync"
)

// InMemory is a map-backed Directory for tests and local development.
type InMemory struct {
	mu        sync.RWMutex
	calls     map[string]Call
	employees map[string]Employee
	scripts   map[string]Script
	summaries []CallSummary
}

// NewInMemory creates an empty in-memory directory.
func NewInMemory() *InMemory {
	return &InMemory{
		calls:     make(map[string]Call),
		employees: make(map[string]Employee),
		scripts:   make(map[string]Script),
	}
}

// AddCall registers a call record.
func (d *InMemory) AddCall(c Call) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls[c.ID] = c
}

// AddEmployee registers an employee record.
func (d *InMemory) AddEmployee(e Employee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[e.ID] = e
}

// AddScript registers a script record.
func (d *InMemory) AddScript(s Script) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scripts[s.ID] = s
}

// ResolveCall implements Directory.
func (d *InMemory) ResolveCall(ctx context.Context, callID string) (Call, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.calls[callID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

// Employee implements Directory.
func (d *InMemory) Employee(ctx context.Context, employeeID string) (Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.employees[employeeID]
	if !ok {
		return Employee{}, ErrNotFound
	}
	return e, nil
}

// Script implements Directory.
func (d *InMemory) Script(ctx context.Context, scriptID string) (Script, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.scripts[scriptID]
	if !ok {
		return Script{}, ErrNotFound
	}
	return s, nil
}

// SaveSummary implements Directory.
func (d *InMemory) SaveSummary(ctx context.Context, summary CallSummary) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.summaries = append(d.summaries, summary)
	return nil
}

// Summaries returns every saved summary. Test helper.
func (d *InMemory) Summaries() []CallSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]CallSummary(nil), d.summaries...)
}
