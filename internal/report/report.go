// Package report carries application status and job parameters from a
// running job to the job bookkeeping service.
package report

import (
	"context"
	"sync"
)

// JobReport is the reporting tool a job talks to.
type JobReport interface {
	SetApplicationStatus(ctx context.Context, jobID, status string) error
	SetJobParameter(ctx context.Context, jobID, name, value string) error
}

// Memory is an in-process JobReport. It keeps every report in order.
type Memory struct {
	mu         sync.Mutex
	statuses   map[string][]string
	parameters map[string]map[string]string
}

// NewMemory returns an empty Memory report.
func NewMemory() *Memory {
	return &Memory{
		statuses:   make(map[string][]string),
		parameters: make(map[string]map[string]string),
	}
}

func (m *Memory) SetApplicationStatus(_ context.Context, jobID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[jobID] = append(m.statuses[jobID], status)
	return nil
}

func (m *Memory) SetJobParameter(_ context.Context, jobID, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parameters[jobID]
	if !ok {
		p = make(map[string]string)
		m.parameters[jobID] = p
	}
	p[name] = value
	return nil
}

// Statuses returns the statuses reported for jobID.
func (m *Memory) Statuses(jobID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.statuses[jobID]...)
}

// Parameter returns a reported job parameter.
func (m *Memory) Parameter(jobID, name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.parameters[jobID][name]
	return v, ok
}
