package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/oshokin/alarm-push/internal/api/grpc/admin"
	"github.com/oshokin/alarm-push/internal/dispatch"
	domain "github.com/oshokin/alarm-push/internal/domain/alarm"
	"github.com/oshokin/alarm-push/internal/logger"
	"github.com/oshokin/alarm-push/internal/protocol"
	"github.com/oshokin/alarm-push/internal/registry"
	"github.com/oshokin/alarm-push/internal/repository/alarms"
	"github.com/oshokin/alarm-push/internal/repository/journal"
	"github.com/oshokin/alarm-push/internal/schedule"
)

const (
	// maxEventsPerTick bounds how many queued events one iteration handles
	// before the schedule is polled.
	maxEventsPerTick = 64
	// rejectLogInterval limits "registry full" warnings.
	rejectLogInterval = 10 * time.Second
)

// listenFunc opens the listening socket of a session.
type listenFunc func(ctx context.Context) (net.Listener, error)

// servingReporter is told whether a listening session is up.
type servingReporter interface {
	SetServing(serving bool)
}

// dispatcher is the single owner of the schedule, the dispatch queue and the registry.
// Every method runs on the dispatcher goroutine.
type dispatcher struct {
	// interval is the tick timeout and the restart delay.
	interval time.Duration
	// writeTimeout bounds every write to a client.
	writeTimeout time.Duration
	// listen opens a listening socket for each session.
	listen listenFunc
	// now returns the current time.
	now func() time.Time

	// alarms is the source the schedule is rebuilt from on reload.
	alarms alarms.Repository
	// schedule holds the upcoming triggers; it survives session restarts.
	schedule *schedule.Schedule
	// queue holds fired, undelivered alarms; it survives session restarts.
	queue *dispatch.Queue
	// clients is emptied at the end of every session.
	clients *registry.Registry

	// journal records delivery attempts, nil when disabled.
	journal journal.Recorder
	// snapshots receives the state after every tick, nil when disabled.
	snapshots *admin.Store
	// health reports serving status, nil when disabled.
	health servingReporter

	// rejects throttles capacity warnings.
	rejects *rate.Limiter
	// suppressed counts rejections not logged since the last warning.
	suppressed int
	// serving is true while a listening session is up.
	serving bool
}

// dispatcherOptions configures newDispatcher.
// Zero values disable the optional collaborators.
type dispatcherOptions struct {
	// interval is the tick timeout and the restart delay.
	interval time.Duration
	// writeTimeout bounds every write to a client.
	writeTimeout time.Duration
	// capacity is the registry size.
	capacity int
	// listen opens a listening socket for each session.
	listen listenFunc
	// now defaults to time.Now.
	now func() time.Time
	// alarms is the reload source.
	alarms alarms.Repository
	// schedule is the initial schedule; nil starts empty.
	schedule *schedule.Schedule
	// journal records delivery attempts.
	journal journal.Recorder
	// snapshots receives the state after every tick.
	snapshots *admin.Store
	// health reports serving status.
	health servingReporter
}

func newDispatcher(opts dispatcherOptions) *dispatcher {
	now := opts.now
	if now == nil {
		now = time.Now
	}

	sched := opts.schedule
	if sched == nil {
		sched, _ = schedule.Build(nil, now()) //nolint:errcheck // An empty build cannot fail.
	}

	return &dispatcher{
		interval:     opts.interval,
		writeTimeout: opts.writeTimeout,
		listen:       opts.listen,
		now:          now,
		alarms:       opts.alarms,
		schedule:     sched,
		queue:        dispatch.NewQueue(),
		clients:      registry.New(opts.capacity, now),
		journal:      opts.journal,
		snapshots:    opts.snapshots,
		health:       opts.health,
		rejects:      rate.NewLimiter(rate.Every(rejectLogInterval), 1),
	}
}

// serve runs listening sessions until ctx is canceled.
// A failed session is followed by a sleep of one interval and a fresh session.
func (d *dispatcher) serve(ctx context.Context, reloads <-chan struct{}) {
	for {
		err := d.runSession(ctx, reloads)
		if ctx.Err() != nil {
			return
		}

		logger.ErrorKV(ctx, "Session failed, restarting", "error", err, "delay", d.interval)
		notify(ctx, statusMessage("Restarting after error: %v", err))

		if !sleep(ctx, d.interval) {
			return
		}
	}
}

// runSession listens and loops until the listener fails or ctx is canceled.
func (d *dispatcher) runSession(ctx context.Context, reloads <-chan struct{}) error {
	listener, err := d.listen(ctx)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s := newSession(listener)
	s.start()

	logger.InfoKV(ctx, "Accepting clients", "address", listener.Addr().String(), "capacity", d.clients.Capacity())
	d.setServing(ctx, true)
	d.publish(d.now())

	defer func() {
		d.setServing(ctx, false)
		s.stop()
		d.clients.CloseAll()
		s.wait()
		d.publish(d.now())
	}()

	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reloads:
			d.reload(ctx)
		case ev := <-s.events:
			if err = d.handle(ctx, s, ev); err != nil {
				return err
			}

			if err = d.drain(ctx, s); err != nil {
				return err
			}
		case <-timer.C:
		}

		d.tick(ctx)
		timer.Reset(d.interval)
	}
}

// drain handles events that are already queued, without blocking.
func (d *dispatcher) drain(ctx context.Context, s *session) error {
	for range maxEventsPerTick {
		select {
		case ev := <-s.events:
			if err := d.handle(ctx, s, ev); err != nil {
				return err
			}
		default:
			return nil
		}
	}

	return nil
}

func (d *dispatcher) handle(ctx context.Context, s *session, ev event) error {
	switch ev.kind {
	case eventAccepted:
		d.admit(ctx, s, ev.conn)
	case eventRead:
		d.read(ctx, ev)
	case eventAcceptFailed:
		return fmt.Errorf("accept: %w", ev.err)
	}

	return nil
}

// admit registers a new connection or closes it when the registry is full.
func (d *dispatcher) admit(ctx context.Context, s *session, conn net.Conn) {
	client, err := d.clients.Add(conn)
	if err != nil {
		_ = conn.Close()

		d.logRejection(ctx, conn, err)

		return
	}

	s.watch(client.ID, conn)

	logger.InfoKV(clientContext(ctx, client), "Client connected", "clients", d.clients.Len())
}

func (d *dispatcher) logRejection(ctx context.Context, conn net.Conn, err error) {
	if !d.rejects.Allow() {
		d.suppressed++

		return
	}

	logger.WarnKV(
		ctx,
		"Connection rejected",
		"remote_addr", remoteAddr(conn),
		"capacity", d.clients.Capacity(),
		"suppressed", d.suppressed,
		"error", err,
	)

	d.suppressed = 0
}

// read applies one read to the registry and tears the connection down on error.
func (d *dispatcher) read(ctx context.Context, ev event) {
	client, ok := d.clients.Get(ev.id)
	if !ok {
		// Already removed; this is the reader noticing the close.
		return
	}

	clientCtx := clientContext(ctx, client)

	if len(ev.data) > 0 {
		result, err := protocol.Handle(clientCtx, d.clients, ev.id, ev.data)
		if err != nil {
			d.disconnect(clientCtx, client, err)

			return
		}

		if len(result.Reply) > 0 {
			if err = d.write(client.Conn, result.Reply); err != nil {
				d.disconnect(clientCtx, client, fmt.Errorf("acknowledge: %w", err))

				return
			}
		}
	}

	if ev.err != nil {
		err := ev.err
		if errors.Is(err, io.EOF) {
			err = protocol.ErrConnectionClosed
		}

		d.disconnect(clientCtx, client, err)
	}
}

func (d *dispatcher) disconnect(ctx context.Context, client *registry.Client, err error) {
	d.clients.Remove(client.ID)

	if errors.Is(err, protocol.ErrConnectionClosed) {
		logger.InfoKV(ctx, "Client disconnected", "clients", d.clients.Len())

		return
	}

	logger.WarnKV(ctx, "Client dropped", "error", err, "clients", d.clients.Len())
}

// tick fires due alarms, delivers them and applies deferred removals.
func (d *dispatcher) tick(ctx context.Context) {
	now := d.now()

	fired, err := d.schedule.Fire(now, d.queue)
	if err != nil {
		logger.ErrorKV(ctx, "Alarms removed from schedule", "error", err)
	}

	if fired > 0 {
		logger.DebugKV(ctx, "Alarms fired", "fired", fired, "pending", d.queue.Len())
	}

	d.deliver(ctx, now)

	for _, client := range d.clients.ApplyRemovals() {
		logger.InfoKV(clientContext(ctx, client), "Client removed after failed delivery", "clients", d.clients.Len())
	}

	d.publish(now)
	notify(ctx, notifyWatchdog)
}

// deliver writes the pending alarms of every identified client in registry order.
// The first failed write stops delivery to that client and marks it for removal;
// the owner's queue is cleared either way.
func (d *dispatcher) deliver(ctx context.Context, now time.Time) {
	d.clients.Each(func(client *registry.Client) bool {
		if !client.Identified() {
			return true
		}

		pending := d.queue.Pending(client.Identity)
		if len(pending) == 0 {
			return true
		}

		clientCtx := clientContext(ctx, client)

		for _, alarm := range pending {
			err := d.write(client.Conn, protocol.EncodeAlert(alarm.Message))
			d.record(clientCtx, client, alarm, now, err)

			if err != nil {
				logger.WarnKV(clientCtx, "Alert delivery failed", "alarm", alarm.String(), "error", err)
				d.clients.MarkForRemoval(client.ID)

				break
			}

			d.clients.Delivered(client.ID, now)
			logger.InfoKV(clientCtx, "Alert delivered", "alarm", alarm.String())
		}

		d.queue.Clear(client.Identity)

		return true
	})

	if owners := d.queue.Owners(); len(owners) > 0 {
		logger.DebugKV(ctx, "Alerts waiting for their owners", "owners", owners, "pending", d.queue.Len())
	}
}

func (d *dispatcher) write(conn net.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(d.writeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	return nil
}

func (d *dispatcher) record(ctx context.Context, client *registry.Client, alarm *domain.Alarm, at time.Time, err error) {
	if d.journal == nil {
		return
	}

	status := journal.StatusDelivered
	if err != nil {
		status = journal.StatusFailed
	}

	recordErr := d.journal.Record(ctx, journal.Delivery{
		Owner:      alarm.Owner,
		Message:    alarm.Message,
		ConnID:     client.ID.String(),
		RemoteAddr: client.RemoteAddr,
		At:         at,
		Status:     status,
	})
	if recordErr != nil {
		logger.WarnKV(ctx, "Unable to journal delivery", "error", recordErr)
	}
}

// reload rebuilds the schedule from the alarms file. The dispatch queue is kept.
// A file that does not load completely leaves the schedule untouched.
func (d *dispatcher) reload(ctx context.Context) {
	if d.alarms == nil {
		return
	}

	loaded, err := d.alarms.Load(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Alarms reload failed, keeping current schedule", "error", err)

		return
	}

	now := d.now()

	rebuilt, err := schedule.Build(loaded, now)
	if err != nil {
		logger.ErrorKV(ctx, "Alarms removed from schedule", "error", err)
	}

	d.schedule = rebuilt

	logger.InfoKV(ctx, "Schedule reloaded", "alarms", rebuilt.Len())
	logSchedule(ctx, rebuilt, now)
}

func (d *dispatcher) setServing(ctx context.Context, serving bool) {
	if d.serving == serving {
		return
	}

	d.serving = serving

	if d.health != nil {
		d.health.SetServing(serving)
	}

	if serving {
		notify(ctx, statusMessage("Serving, %d alarms scheduled", d.schedule.Len()))
	}
}

// publish hands an immutable copy of the dispatcher state to the admin API.
func (d *dispatcher) publish(now time.Time) {
	if d.snapshots == nil {
		return
	}

	entries := d.schedule.Entries()
	scheduled := make([]admin.ScheduledAlarm, 0, len(entries))

	for _, e := range entries {
		scheduled = append(scheduled, admin.ScheduledAlarm{
			At:      e.At,
			Owner:   e.Alarm.Owner,
			Kind:    e.Alarm.Kind.String(),
			Hour:    e.Alarm.Hour,
			Minute:  e.Alarm.Minute,
			Message: e.Alarm.Message,
		})
	}

	registered := d.clients.Clients()
	clients := make([]admin.ClientInfo, 0, len(registered))

	for _, c := range registered {
		clients = append(clients, admin.ClientInfo{
			ConnID:       c.ID.String(),
			Identity:     c.Identity,
			RemoteAddr:   c.RemoteAddr,
			ConnectedAt:  c.ConnectedAt,
			LastDelivery: c.LastDelivery,
		})
	}

	d.snapshots.Publish(&admin.Snapshot{
		GeneratedAt: now,
		Schedule:    scheduled,
		Clients:     clients,
		Pending:     d.queue.Counts(),
		Serving:     d.serving,
	})
}

// clientContext attaches connection fields to the logger in ctx.
func clientContext(ctx context.Context, client *registry.Client) context.Context {
	ctx = logger.WithFields(ctx, "conn_id", client.ID.String(), "remote_addr", client.RemoteAddr)
	if client.Identified() {
		ctx = logger.WithKV(ctx, "identity", client.Identity)
	}

	return ctx
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}

// logSchedule writes the schedule, one entry per line, at info level.
func logSchedule(ctx context.Context, s *schedule.Schedule, now time.Time) {
	for _, line := range s.Describe(now) {
		logger.Info(ctx, line)
	}
}

// sleep waits for d or until ctx is canceled. It reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
