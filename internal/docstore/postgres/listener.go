package postgres

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"family-organizer/internal/database"
	"family-organizer/internal/docstore"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var errClosed = errors.New("postgres store closed")

const (
	minReconnectWait = 250 * time.Millisecond
	maxReconnectWait = 30 * time.Second
)

// listenConn is a connection that has already issued LISTEN.
type listenConn interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Release()
}

type acquireFunc func(ctx context.Context) (listenConn, error)

// reader serves the reads a refresh performs.
type reader interface {
	Get(ctx context.Context, path string) (*docstore.Document, error)
	List(ctx context.Context, collection string) ([]docstore.Document, error)
}

type pooledConn struct {
	conn *pgxpool.Conn
}

func (c pooledConn) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return c.conn.Conn().WaitForNotification(ctx)
}

func (c pooledConn) Release() {
	c.conn.Release()
}

// listenOn acquires a pooled connection and subscribes it to document changes.
func listenOn(db *database.DB) acquireFunc {
	return func(ctx context.Context) (listenConn, error) {
		conn, err := db.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := conn.Exec(ctx, "LISTEN "+database.NotifyChannel); err != nil {
			conn.Release()
			return nil, err
		}
		return pooledConn{conn: conn}, nil
	}
}

type subscription struct {
	path       string
	collection string
	docFn      docstore.DocListener
	colFn      docstore.CollectionListener
	feed       *docstore.Feed
}

// listener holds one connection in LISTEN mode and refreshes the
// subscriptions whose document or collection changed. A lost connection is
// replaced and every subscription is refreshed, since notifications sent
// while it was down are gone.
type listener struct {
	acquire acquireFunc
	reader  reader
	conn    listenConn
	minWait time.Duration
	cancel  context.CancelFunc
	ctx     context.Context
	done    chan struct{}

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

func startListener(ctx context.Context, acquire acquireFunc, r reader, minWait time.Duration) (*listener, error) {
	conn, err := acquire(ctx)
	if err != nil {
		return nil, err
	}

	lctx, cancel := context.WithCancel(context.Background())
	l := &listener{
		acquire: acquire,
		reader:  r,
		conn:    conn,
		minWait: minWait,
		ctx:     lctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		subs:    make(map[*subscription]struct{}),
	}
	go l.run()
	return l, nil
}

func (l *listener) run() {
	defer close(l.done)

	conn := l.conn
	for {
		n, err := conn.WaitForNotification(l.ctx)
		if err == nil {
			l.changed(n.Payload)
			continue
		}

		conn.Release()
		if l.ctx.Err() != nil {
			return
		}
		log.Printf("Document listener lost its connection: %v", err)

		if conn = l.reconnect(); conn == nil {
			return
		}
		l.refreshAll()
	}
}

// reconnect retries with exponential backoff until it has a listening
// connection or the listener is closed.
func (l *listener) reconnect() listenConn {
	wait := l.minWait
	for {
		select {
		case <-l.ctx.Done():
			return nil
		case <-time.After(wait):
		}

		conn, err := l.acquire(l.ctx)
		if err == nil {
			log.Println("Document listener reconnected")
			return conn
		}
		if l.ctx.Err() != nil {
			return nil
		}
		log.Printf("Document listener reconnect failed: %v", err)
		wait = min(wait*2, maxReconnectWait)
	}
}

func (l *listener) subscribe(ctx context.Context, sub *subscription) (docstore.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errClosed
	}
	sub.feed = docstore.NewFeed(ctx, func() {
		l.mu.Lock()
		delete(l.subs, sub)
		l.mu.Unlock()
	})
	l.subs[sub] = struct{}{}
	l.refresh(sub)
	return sub.feed.Cancel, nil
}

func (l *listener) changed(path string) {
	parent, _ := docstore.Split(path)

	l.mu.Lock()
	defer l.mu.Unlock()
	for sub := range l.subs {
		if (sub.docFn != nil && sub.path == path) || (sub.colFn != nil && sub.collection == parent) {
			l.refresh(sub)
		}
	}
}

func (l *listener) refreshAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for sub := range l.subs {
		l.refresh(sub)
	}
}

// refresh queues a read of the current state. The read runs on the feed's
// goroutine, so a burst of notifications costs a single query.
func (l *listener) refresh(sub *subscription) {
	if sub.docFn != nil {
		sub.feed.Push(func() {
			doc, err := l.reader.Get(l.ctx, sub.path)
			if errors.Is(err, docstore.ErrNotFound) {
				doc = nil
			} else if err != nil {
				log.Printf("Failed to refresh %s: %v", sub.path, err)
				return
			}
			sub.docFn(doc)
		})
		return
	}
	sub.feed.Push(func() {
		docs, err := l.reader.List(l.ctx, sub.collection)
		if err != nil {
			log.Printf("Failed to refresh %s: %v", sub.collection, err)
			return
		}
		sub.colFn(docs)
	})
}

func (l *listener) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	subs := make([]*subscription, 0, len(l.subs))
	for sub := range l.subs {
		subs = append(subs, sub)
	}
	l.mu.Unlock()

	for _, sub := range subs {
		sub.feed.Cancel()
	}
	l.cancel()
	<-l.done
}
