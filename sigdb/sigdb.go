// Package sigdb records acquisition metadata to a ClickHouse database.
package sigdb

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const databaseName = "sigdaq" // official SQL name of the database

// Connection wraps one ClickHouse connection and the channels feeding its
// insert loop. A Connection with a nil conn (server unreachable, or
// DummyConnection) silently drops all messages, so callers never need to
// distinguish recording from non-recording runs.
type Connection struct {
	conn          clickhouse.Conn
	err           error
	activityEntry *ActivityMessage
	acqmsg        chan *AcquisitionMessage
	wavemsg       chan *WaveformMessage
	sync.WaitGroup
}

func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.err == nil)
}

// PingServer verifies that the database is reachable and prints the
// server version.
func PingServer() error {
	db := createConnection()
	if !db.IsConnected() {
		return fmt.Errorf("database is not connected")
	}
	v, err := db.conn.ServerVersion()
	if err != nil {
		return err
	}
	fmt.Printf("ClickHouse server is alive. Version:\n%s\n", v)
	db.conn.Close()
	return nil
}

// StartConnection connects, logs the activity row, and starts the insert
// loop. It never fails: an unreachable server yields a connection that
// drops messages.
func StartConnection(activity *ActivityMessage, abort <-chan struct{}) *Connection {
	db := createConnection()
	db.activityEntry = activity
	db.logActivity()
	go db.handleConnection(abort)
	return db
}

// DummyConnection returns a Connection that records nothing. There is no
// insert loop behind it, so Wait returns immediately.
func DummyConnection() *Connection {
	return &Connection{}
}

func createConnection() *Connection {
	db := &Connection{}
	auth := clickhouse.Auth{
		Database: databaseName,
		Username: os.Getenv("SIGDAQ_DB_USER"),
		Password: os.Getenv("SIGDAQ_DB_PASSWORD"),
	}
	client := clickhouse.ClientInfo{
		Products: []struct {
			Name    string
			Version string
		}{
			{Name: "sigdaq", Version: "unknown"},
		},
	}
	opt := clickhouse.Options{
		Addr:       []string{"localhost:9000"},
		Auth:       auth,
		ClientInfo: client,
		TLS:        nil,
	}
	ctx := context.Background()
	conn, err := clickhouse.Open(&opt)
	if err != nil {
		db.err = err
		return db
	}
	db.conn = conn
	db.Add(1)

	if err = conn.Ping(ctx); err != nil {
		if exception, ok := err.(*clickhouse.Exception); ok {
			fmt.Printf("Exception [%d] %s \n%s\n", exception.Code, exception.Message, exception.StackTrace)
		}
		db.err = err
		return db
	}

	db.acqmsg = make(chan *AcquisitionMessage)
	db.wavemsg = make(chan *WaveformMessage)
	return db
}

func (db *Connection) logActivity() {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	ae := db.activityEntry
	formattedStart := ae.Start.Format("2006-01-02 15:04:05.000000")
	formattedEnd := ae.End.Format("2006-01-02 15:04:05.000000")
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO sigdaqactivity VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		ae.ID, ae.Hostname, ae.Githash, ae.Version,
		ae.GoVersion, ae.CPUs, formattedStart, formattedEnd,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into sigdaqactivity ", err)
		db.err = err
	}
}

func (db *Connection) handleConnection(abort <-chan struct{}) {
	defer db.Done()
	for {
		select {
		case <-abort:
			db.Disconnect()
			return
		case amsg := <-db.acqmsg:
			db.handleAcquisitionMessage(amsg)
		case wmsg := <-db.wavemsg:
			db.handleWaveformMessage(wmsg)
		}
	}
}

// Disconnect closes out the activity row with the current time.
func (db *Connection) Disconnect() {
	if db.IsConnected() {
		db.activityEntry.End = time.Now()
		db.logActivity()
	}
}

// RecordAcquisition stores one capture's metadata.
// This function will block until the select statement in `handleConnection`
// accepts the message.
// WARNING: Don't change this blocking behavior! It is how we ensure an
// acquisition is entered in the DB before any corresponding calls to
// `RecordWaveform` begin. Without the blocking, there would be a race
// between the 2 kinds of DB entries, and some waveform rows would be
// entered without valid acquisition IDs.
func (db *Connection) RecordAcquisition(msg *AcquisitionMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	db.acqmsg <- msg
}

// RecordWaveform stores one channel's per-segment statistics.
func (db *Connection) RecordWaveform(msg *WaveformMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	go func() { db.wavemsg <- msg }()
}

func (db *Connection) handleAcquisitionMessage(m *AcquisitionMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	formattedTime := m.Timestamp.Format("2006-01-02 15:04:05.000000")
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO acquisitions VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		m.ID, db.activityEntry.ID, m.Model, m.Serial,
		m.Segments, m.Nchannels, m.NSamples, m.SampleRate, formattedTime,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into acquisitions ", err)
		db.err = err
	}
}

func (db *Connection) handleWaveformMessage(m *WaveformMessage) {
	if !db.IsConnected() {
		return
	}
	ctx := context.Background()
	const nowait = false
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO waveforms VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		m.AcquisitionID, m.Segment, m.Channel, m.ChanName,
		m.SamplePeriod, m.Min, m.Max, m.Mean,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into waveforms ", err)
		db.err = err
	}
}
