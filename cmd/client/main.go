package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"wildchain/internal/ledger"
	"wildchain/internal/persistence/indexdb"
	"wildchain/internal/persistence/journal"
	"wildchain/internal/protocol"
	"wildchain/internal/sim/mirror"
)

func main() {
	var (
		url        = flag.String("url", "ws://127.0.0.1:8080/v1/feed", "ledger gateway websocket url")
		configPath = flag.String("config", "", "path to mirror config yaml (defaults applied when empty)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		clientName = flag.String("name", "wildchain-client", "client name sent in HELLO")
		player     = flag.String("player", "", "player wallet address")
		balls      = flag.String("balls", "BALL:10", "starting ball inventory, kind:count pairs")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	cfg := mirror.DefaultConfig()
	if strings.TrimSpace(*configPath) != "" {
		var err error
		cfg, err = mirror.LoadConfig(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
	}

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	feedJournal := journal.NewFeedJournal(*dataDir)
	defer feedJournal.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		var err error
		idx, err = indexdb.Open(filepath.Join(*dataDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
	}

	rec := multiRecorder{a: feedJournal, b: idx}
	audit := multiAudit{a: feedJournal, b: idx}

	scene := &consoleScene{log: logger}
	reg := mirror.NewRegistry(cfg, logger, scene, audit)

	var feed *ledger.Feed
	core := mirror.NewCore(cfg, logger, reg, nil, pollerFunc(func(reqID string) error {
		return feed.RequestTable(reqID)
	}), rec)

	selector := &preferenceSelector{}
	catcher := mirror.NewCatcher(cfg, logger, reg, selector, submitterFunc(func(slot int, targetID, ball string) error {
		return feed.SubmitCatch(slot, targetID, ball)
	}), scene, core, audit)
	selector.catcher = catcher
	core.AttachCatcher(catcher)

	feed = ledger.NewFeed(ledger.FeedConfig{
		URL:        *url,
		ClientName: *clientName,
		Player:     *player,
		OnSubmit: func(reqID string, slot int, targetID, ball string) {
			if idx != nil {
				idx.RecordAttempt(reqID, slot, targetID, ball)
			}
		},
	}, logger, core)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := feed.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("feed stopped: %v", err)
		}
	}()

	go func() {
		if err := core.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("core stopped: %v", err)
		}
	}()

	inventory, err := parseBalls(*balls)
	if err != nil {
		logger.Fatalf("parse -balls: %v", err)
	}
	core.Do(func(_ *mirror.Registry, c *mirror.Catcher) {
		for kind, n := range inventory {
			c.SetBallCount(kind, n)
		}
	})

	// The console scene has nothing to load; buffered feed traffic can
	// flush immediately.
	core.SceneReady()

	go commandLoop(ctx, core, logger)

	<-ctx.Done()
	logger.Printf("shutting down")
}

// commandLoop reads operator commands from stdin: move x y, click id,
// balls kind n, stats.
func commandLoop(ctx context.Context, core *mirror.Core, logger *log.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "move":
			if len(fields) != 3 {
				logger.Printf("usage: move <x> <y>")
				continue
			}
			x, errX := strconv.ParseFloat(fields[1], 64)
			y, errY := strconv.ParseFloat(fields[2], 64)
			if errX != nil || errY != nil {
				logger.Printf("move: bad coordinates")
				continue
			}
			core.SetLocalPlayerPosition(x, y)
		case "click":
			if len(fields) != 2 {
				logger.Printf("usage: click <id>")
				continue
			}
			if err := core.ClickActor(fields[1]); err != nil {
				logger.Printf("click %s: %v", fields[1], err)
			}
		case "balls":
			if len(fields) != 3 {
				logger.Printf("usage: balls <kind> <count>")
				continue
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil {
				logger.Printf("balls: bad count")
				continue
			}
			core.Do(func(_ *mirror.Registry, c *mirror.Catcher) {
				c.SetBallCount(fields[1], n)
			})
		case "stats":
			core.Do(func(r *mirror.Registry, c *mirror.Catcher) {
				st := r.Stats()
				logger.Printf("mirrored=%d pool_free=%d state=%s balls=%d", r.Len(), r.Pool().FreeCount(), c.State(), c.BallCount("BALL"))
				logger.Printf("snapshots=%d events=%d stale=%d dup_adds=%d slot_mismatch=%d malformed=%d sep_breach=%d pool_exhausted=%d recoveries=%d",
					st.SnapshotsApplied, st.EventsApplied, st.StaleEvents, st.DuplicateAdds,
					st.SlotMismatches, st.MalformedRows, st.SeparationBreach, st.PoolExhausted, c.ForcedRecoveries())
			})
		default:
			logger.Printf("unknown command %q (move, click, balls, stats)", fields[0])
		}
	}
}

// preferenceSelector throws the strongest ball the player still has.
type preferenceSelector struct {
	catcher *mirror.Catcher
}

var ballPreference = []string{"ULTRA_BALL", "GREAT_BALL", "BALL"}

func (s *preferenceSelector) ChooseBall() (string, bool) {
	for _, kind := range ballPreference {
		if s.catcher.BallCount(kind) > 0 {
			return kind, true
		}
	}
	return "", false
}

func parseBalls(arg string) (map[string]int, error) {
	out := make(map[string]int)
	for _, pair := range strings.Split(arg, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kind, count, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("pair %q: want kind:count", pair)
		}
		n, err := strconv.Atoi(count)
		if err != nil {
			return nil, fmt.Errorf("pair %q: %v", pair, err)
		}
		out[strings.TrimSpace(kind)] = n
	}
	return out, nil
}

type submitterFunc func(slot int, targetID, ball string) error

func (f submitterFunc) SubmitCatch(slot int, targetID, ball string) error {
	return f(slot, targetID, ball)
}

type pollerFunc func(reqID string) error

func (f pollerFunc) RequestTable(reqID string) error { return f(reqID) }

// multiRecorder fans feed traffic out to the journal and the index.
type multiRecorder struct {
	a *journal.FeedJournal
	b *indexdb.SQLiteIndex
}

func (m multiRecorder) RecordSnapshot(msg protocol.TableMsg) {
	m.a.RecordSnapshot(msg)
	if m.b != nil {
		m.b.RecordSnapshot(msg)
	}
}

func (m multiRecorder) RecordEvent(ev protocol.Event) {
	m.a.RecordEvent(ev)
	if m.b != nil {
		m.b.RecordEvent(ev)
	}
}

type multiAudit struct {
	a *journal.FeedJournal
	b *indexdb.SQLiteIndex
}

func (m multiAudit) RecordAudit(e mirror.AuditEntry) {
	m.a.RecordAudit(e)
	if m.b != nil {
		m.b.RecordAudit(e)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
