// Command gate is the terminal client of an usher device.  Lines typed on
// stdin, including those sent by a keyboard-wedge QR scanner, are either
// commands or search tokens.  The selected purchase's roster follows the
// change feed, so check-ins made on other devices show up live.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/pflag"

	"github.com/iliyamo/event-gate/internal/checkin"
	"github.com/iliyamo/event-gate/internal/config"
	"github.com/iliyamo/event-gate/internal/database"
	"github.com/iliyamo/event-gate/internal/feed"
	"github.com/iliyamo/event-gate/internal/logger"
	"github.com/iliyamo/event-gate/internal/memstore"
	"github.com/iliyamo/event-gate/internal/repository"
	"github.com/iliyamo/event-gate/internal/service"
	"github.com/iliyamo/event-gate/internal/usher"
)

type options struct {
	sessionFile string
	demo        bool
	logLevel    string
}

func main() {
	var opts options
	pflag.StringVar(&opts.sessionFile, "session-file", defaultSessionFile(), "file holding this device's usher session")
	pflag.BoolVar(&opts.demo, "demo", false, "use an in-memory store seeded with sample purchases")
	pflag.StringVar(&opts.logLevel, "log-level", "warn", "log level written to stderr")
	pflag.Parse()

	if err := run(context.Background(), opts, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "gate:", err)
		os.Exit(1)
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "gate-session.json"
	}
	return filepath.Join(dir, "event-gate", "session.json")
}

func run(ctx context.Context, opts options, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log := logger.New(logger.Options{
		ServiceName: "event-gate-terminal",
		Level:       logger.ParseLevel(opts.logLevel),
		Format:      "console",
		Output:      os.Stderr,
	})
	term := newTerminal(out)

	gw, ledgerOpts, closeStore, err := openGateway(ctx, opts.demo, log, term)
	if err != nil {
		return err
	}
	defer closeStore()

	device, err := usher.NewDevice(usher.NewFileStore(opts.sessionFile))
	if err != nil {
		return err
	}
	ledgerOpts = append(ledgerOpts, checkin.WithLedgerLogger(log))
	console := checkin.NewConsole(
		checkin.NewResolver(gw, nil),
		checkin.NewLedger(gw, ledgerOpts...),
		checkin.NewProjector(gw, log),
		term,
	)
	defer console.Close()

	if s, ok := device.Current(); ok {
		term.printf("welcome back %s (%s), %d check-in(s) so far\n", s.Name, s.ID, s.CheckInsToday)
	} else {
		term.printf("not logged in; type: login <id> <name>\n")
	}

	a := &app{ctx: ctx, console: console, device: device, term: term, log: log}
	a.loop(in)
	return nil
}

// openGateway returns the demo store or the MySQL store configured from
// the environment, with the ledger options that go with it.
func openGateway(ctx context.Context, demo bool, log *logger.Logger, term *terminal) (checkin.Gateway, []checkin.LedgerOption, func(), error) {
	if demo {
		store := memstore.New(feed.NewHub(nil))
		ps, err := seedDemo(ctx, store)
		if err != nil {
			return nil, nil, nil, err
		}
		term.printf("demo store; scan one of:\n")
		for _, p := range ps {
			term.printf("  %s  %s\n", *p.QRCode, p.CustomerName)
		}
		return store, nil, func() {}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := database.Open(ctx, database.Options{
		User: cfg.DB.User,
		Pass: cfg.DB.Pass,
		Host: cfg.DB.Host,
		Port: cfg.DB.Port,
		Name: cfg.DB.Name,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	rdb := config.NewRedisClient(cfg.Redis)
	var broker feed.Broker = feed.NewHub(nil)
	if rdb != nil {
		broker = feed.NewRedis(rdb, log, nil)
	} else {
		log.Warn(ctx, "redis unavailable; other devices' check-ins will not show up live")
	}
	audit := service.NewAuditPublisher(cfg.RabbitMQ.URL, log)
	closeAll := func() {
		_ = audit.Close()
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = db.Close()
	}
	return repository.NewGateStore(db, broker, log), []checkin.LedgerOption{checkin.WithAudit(audit)}, closeAll, nil
}

type app struct {
	ctx     context.Context
	console *checkin.Console
	device  *usher.Device
	term    *terminal
	log     *logger.Logger
	wg      sync.WaitGroup
}

// loop reads commands until quit or end of input.  Searches and check-ins
// run on their own goroutines so a slow store never blocks the scanner.
func (a *app) loop(in io.Reader) {
	defer a.wg.Wait()
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		cmd := parseCommand(sc.Text())
		switch cmd.verb {
		case verbQuit:
			return
		case verbInvalid:
			a.term.printf("! %s\n", cmd.arg)
		case verbHelp:
			a.term.printf("%s\n", helpText)
		case verbLogin:
			s, err := a.device.Login(cmd.name, cmd.arg)
			if err != nil {
				a.term.ShowNotice(err)
				continue
			}
			a.term.printf("logged in as %s (%s)\n", s.Name, s.ID)
		case verbLogout:
			if err := a.device.Logout(); err != nil {
				a.term.ShowNotice(err)
				continue
			}
			a.term.printf("logged out\n")
		case verbWhoami:
			if s, ok := a.device.Current(); ok {
				a.term.printf("%s (%s) since %s, %d check-in(s)\n", s.Name, s.ID, s.LoginTime.Local().Format("15:04"), s.CheckInsToday)
			} else {
				a.term.printf("not logged in\n")
			}
		case verbList:
			p, guests := a.console.Selected()
			if p == nil {
				a.term.printf("nothing selected\n")
				continue
			}
			a.term.ShowPurchase(*p, guests)
		case verbCheckIn:
			g, ok := a.console.GuestAt(cmd.order)
			if !ok {
				a.term.printf("! no guest #%d in the selected purchase\n", cmd.order)
				continue
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				_, _ = a.console.CheckIn(a.ctx, g.ID, a.device)
			}()
		case verbSearch:
			a.wg.Add(1)
			go func(token string) {
				defer a.wg.Done()
				if err := a.console.Search(a.ctx, token); err != nil && !errors.Is(err, checkin.ErrStaleResponse) {
					a.log.Debug(a.log.WithField(a.ctx, "token", token), "search failed: "+err.Error())
				}
			}(cmd.arg)
		}
	}
}
