// Command portalgw is the gateway process: it wires the reader
// session/reconnect/aggregation/sightings/upload pipeline of spec §4
// onto a local sqlite3 store, then serves the control protocol and
// discovery responder of spec §6 until asked to stop.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/chronokeep/portal-gateway/internal/aggregator"
	"github.com/chronokeep/portal-gateway/internal/config"
	"github.com/chronokeep/portal-gateway/internal/control"
	"github.com/chronokeep/portal-gateway/internal/discovery"
	"github.com/chronokeep/portal-gateway/internal/eventbus"
	"github.com/chronokeep/portal-gateway/internal/model"
	"github.com/chronokeep/portal-gateway/internal/portalerr"
	"github.com/chronokeep/portal-gateway/internal/readersession"
	"github.com/chronokeep/portal-gateway/internal/reconnect"
	"github.com/chronokeep/portal-gateway/internal/repository"
	"github.com/chronokeep/portal-gateway/internal/sightings"
	"github.com/chronokeep/portal-gateway/internal/taskmanager"
	"github.com/chronokeep/portal-gateway/internal/upload"
	"github.com/chronokeep/portal-gateway/pkg/log"
)

// portalConfig is the JSON config file shape (spec is silent on
// deployment config, so this follows the teacher's "flag + optional
// JSON file" convention with a single field this domain needs).
type portalConfig struct {
	Database string `json:"database"`
}

func main() {
	var flagConfigFile, flagDatabase string
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default options by those specified in `config.json`")
	flag.StringVar(&flagDatabase, "db", "", "Path to the sqlite3 database file (overrides config.json)")
	flag.Parse()

	programConfig := portalConfig{Database: "./portal.db"}
	if f, err := os.Open(flagConfigFile); err == nil {
		dec := json.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&programConfig); err != nil {
			log.Fatalf("parsing %s: %s", flagConfigFile, err.Error())
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		log.Fatal(err)
	}
	if flagDatabase != "" {
		programConfig.Database = flagDatabase
	}

	repo, err := repository.Connect(programConfig.Database)
	if err != nil {
		log.Fatal(err)
	}
	if err := repository.Migrate(repo.DB.DB); err != nil {
		if se, ok := err.(*portalerr.StorageError); ok && se.Kind == portalerr.StorageTooNew {
			// spec §6: DatabaseTooNew is fatal at startup.
			log.Fatalf("database: %s", err.Error())
		}
		log.Fatal(err)
	}

	readers, err := repo.Readers()
	if err != nil {
		log.Fatal(err)
	}

	bus := eventbus.New()

	processor := sightings.New(repo, bus)
	sink := &readSink{repo: repo, bus: bus, processor: processor}

	worker := upload.New(repo, upload.NewHTTPRemote(), bus)
	if pauseSeconds, err := config.ParseTimeValue(settingOrDefault(repo, model.SettingUploadInterval)); err == nil {
		worker.SetPause(time.Duration(pauseSeconds) * time.Second)
	}

	portalName := portalNameFunc(repo)
	notifier := &reconnectNotifier{bus: bus}
	supervisor := reconnect.New(notifier)
	newSession := sessionFactory(repo, sink)

	server := control.New(repo, bus, readers, newSession, supervisor, portalName)
	notifier.server = server

	port, err := server.Listen()
	if err != nil {
		log.Fatal(err)
	}
	responder, err := discovery.New(uint16(port), portalName)
	if err != nil {
		log.Fatal(err)
	}

	if err := taskmanager.Start(bus); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		processor.Run(ctx)
	}()

	if settingOrDefault(repo, model.SettingAutoRemote) == "true" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		responder.Run(ctx)
	}()

	server.AutoConnect(ctx)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Serve(); err != nil {
			log.Infof("control: server stopped: %s", err.Error())
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Print("shutting down")

	cancel()
	server.Close()
	processor.Stop()
	worker.Stop()
	responder.Close()
	if err := taskmanager.Shutdown(); err != nil {
		log.Warnf("taskmanager: shutdown: %s", err.Error())
	}

	wg.Wait()
	log.Print("shutdown complete")
}

// settingOrDefault reads a single setting from the store, falling
// back to its schema default when the row is missing (spec §6: every
// known key always has a default).
func settingOrDefault(repo *repository.Repository, key string) string {
	s, err := repo.Setting(key)
	if err != nil {
		return config.Defaults[key]
	}
	return s.Value
}

// portalNameFunc resolves the current portal name on every call, so
// the control protocol and the discovery responder always announce
// whatever an operator last set via settings_set (spec §6).
func portalNameFunc(repo *repository.Repository) func() string {
	return func() string {
		if s, err := repo.Setting(model.SettingPortalName); err == nil && s.Value != "" {
			return s.Value
		}
		return config.DefaultPortalName(0)
	}
}

// sessionFactory builds the per-reader Aggregator/Sink pair and
// returns a live readersession.Session, re-reading chip-type and
// read-window settings on every call so a settings_set between
// connects takes effect on the next one.
func sessionFactory(repo *repository.Repository, sink readersession.Sink) control.SessionFactory {
	return func(reader *model.Reader) control.Session {
		chipType := model.ChipType(settingOrDefault(repo, model.SettingChipType))
		windowTenths, err := strconv.ParseUint(settingOrDefault(repo, model.SettingReadWindow), 10, 8)
		if err != nil {
			windowTenths = 20
		}
		agg := aggregator.New(reader.Nickname, chipType, uint8(windowTenths))
		return readersession.New(reader, agg, sink, chipType)
	}
}

// readSink chains an aggregator's emitted reads through persistence,
// the event bus and the sightings processor (spec §4.C "Persistence
// contract").
type readSink struct {
	repo      *repository.Repository
	bus       *eventbus.Bus
	processor *sightings.Processor
}

func (s *readSink) AcceptReads(reads []model.Read) {
	if len(reads) == 0 {
		return
	}
	if err := s.repo.SaveReads(reads); err != nil {
		log.Errorf("main: saving reads: %s", err.Error())
		return
	}
	s.bus.BroadcastReads(reads)
	s.processor.Notify()
}

// reconnectNotifier re-broadcasts the reader list once a reader's
// reconnect budget is exhausted (spec §4.D "the operator is notified
// once via the event bus"). server is set after construction since
// the supervisor must exist before the control.Server that owns the
// registry it will eventually read back from.
type reconnectNotifier struct {
	bus    *eventbus.Bus
	server *control.Server
}

func (n *reconnectNotifier) NotifyReconnectExhausted(readerName string) {
	log.Warnf("reader %q exhausted its reconnect budget", readerName)
	if n.server != nil {
		n.bus.BroadcastReaders(n.server.Readers())
	}
}
