// Package bus carries raw batches in and merge events out over NATS.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"sbahn-canon/internal/pipeline"
	"sbahn-canon/internal/timetable"
)

type Metrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

type Conn struct {
	nc          *nats.Conn
	logSubjects bool
	metrics     Metrics
}

func Connect(url string, logSubjects bool, m Metrics) (*Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("sbahn-canon"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Printf("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Printf("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return &Conn{nc: nc, logSubjects: logSubjects, metrics: m}, nil
}

// Close drains subscriptions and pending publishes before closing.
func (c *Conn) Close() {
	if c.nc != nil {
		if err := c.nc.Drain(); err != nil {
			c.nc.Close()
		}
	}
}

// Submitter is implemented by pipeline.Runner.
type Submitter interface {
	Submit(ctx context.Context, b timetable.Batch) error
}

// Subscribe hands every batch published under subject to sink. Undecodable
// messages are logged and dropped. Submit blocks while the ingest queue is
// full, which holds back further deliveries on this subscription.
func (c *Conn) Subscribe(ctx context.Context, subject string, sink Submitter) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		b, err := DecodeBatch(msg.Subject, msg.Data)
		if err != nil {
			log.Printf("nats batch on %s dropped: %v", msg.Subject, err)
			return
		}
		if c.logSubjects {
			log.Printf("nats batch subject=%s id=%s rows=%d", msg.Subject, b.ID, len(b.Rows))
		}
		if err := sink.Submit(ctx, b); err != nil {
			log.Printf("submit batch %s: %v", b.ID, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	log.Printf("nats subscribed to %s", subject)
	return sub, nil
}

// DecodeBatch parses a JSON batch. A batch without an id is named after the
// last token of its subject.
func DecodeBatch(subject string, data []byte) (timetable.Batch, error) {
	var b timetable.Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return timetable.Batch{}, fmt.Errorf("decode batch: %w", err)
	}
	if strings.TrimSpace(b.ID) == "" {
		b.ID = subject
		if i := strings.LastIndex(subject, "."); i >= 0 {
			b.ID = subject[i+1:]
		}
	}
	return b, nil
}

type Publisher struct {
	conn    *Conn
	subject string
}

func (c *Conn) Publisher(subject string) *Publisher {
	return &Publisher{conn: c, subject: subject}
}

// PublishMerged announces a merge on <subject>.<batch id>.
func (p *Publisher) PublishMerged(ev pipeline.MergeEvent) error {
	return p.conn.publish(MergedSubject(p.subject, ev.BatchID), ev)
}

func MergedSubject(base, batchID string) string {
	return fmt.Sprintf("%s.%s", base, subjectToken(batchID))
}

func (c *Conn) publish(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if c.logSubjects {
		log.Printf("nats publish subject=%s", subject)
	}
	start := time.Now()
	err = c.nc.Publish(subject, b)
	if c.metrics != nil {
		c.metrics.PublishObserve(time.Since(start))
		if err != nil {
			c.metrics.NATSPublishErrInc()
		} else {
			c.metrics.NATSPublishedInc()
		}
	}
	return err
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
