// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package amf

import "sync/atomic"

// Metrics contains atomic counters for a transport.
// Counters can be used as the value of a prometheus CounterFunc.
type Metrics struct {
	// TransactionCount indicates the number of command/answer exchanges attempted.
	TransactionCount atomic.Uint64
	// BroadcastCount indicates the number of fire-and-forget frames written.
	BroadcastCount atomic.Uint64
	// BytesSent indicates the number of bytes written to the port.
	BytesSent atomic.Uint64
	// BytesReceived indicates the number of bytes read from the port.
	BytesReceived atomic.Uint64

	// PollCount indicates the number of status queries issued by the poller.
	PollCount atomic.Uint64
	// FaultCount indicates the number of device faults reported.
	FaultCount atomic.Uint64
	// TimeoutCount indicates the number of answers that never completed.
	TimeoutCount atomic.Uint64
	// MalformedCount indicates the number of answers that failed to decode.
	MalformedCount atomic.Uint64
}

func (m *Metrics) incTransactionCount() {
	m.TransactionCount.Add(1)
}

func (m *Metrics) incBroadcastCount() {
	m.BroadcastCount.Add(1)
}

func (m *Metrics) addBytesSent(n int) {
	m.BytesSent.Add(uint64(n))
}

func (m *Metrics) addBytesReceived(n int) {
	m.BytesReceived.Add(uint64(n))
}

func (m *Metrics) incPollCount() {
	m.PollCount.Add(1)
}

func (m *Metrics) incFaultCount() {
	m.FaultCount.Add(1)
}

func (m *Metrics) incTimeoutCount() {
	m.TimeoutCount.Add(1)
}

func (m *Metrics) incMalformedCount() {
	m.MalformedCount.Add(1)
}

// Snapshot is a point-in-time copy of Metrics.
type Snapshot struct {
	Transactions uint64
	Broadcasts   uint64
	BytesSent    uint64
	BytesRecv    uint64
	Polls        uint64
	Faults       uint64
	Timeouts     uint64
	Malformed    uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Transactions: m.TransactionCount.Load(),
		Broadcasts:   m.BroadcastCount.Load(),
		BytesSent:    m.BytesSent.Load(),
		BytesRecv:    m.BytesReceived.Load(),
		Polls:        m.PollCount.Load(),
		Faults:       m.FaultCount.Load(),
		Timeouts:     m.TimeoutCount.Load(),
		Malformed:    m.MalformedCount.Load(),
	}
}
