package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"os/user"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey-austin/botify/internal/adapters/config"
	"github.com/mikey-austin/botify/internal/adapters/mqtt"
	"github.com/mikey-austin/botify/internal/adapters/output"
	"github.com/mikey-austin/botify/internal/core"
	"github.com/mikey-austin/botify/internal/dispatch"
	"github.com/mikey-austin/botify/internal/jellyfin"
	"github.com/mikey-austin/botify/internal/ports"
	"github.com/mikey-austin/botify/internal/session"
	"github.com/mikey-austin/botify/pkg/bp"
)

type app struct {
	service *core.Service
	printer output.Printer
	timeout time.Duration
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{
		Use:   "botify",
		Short: "Jellyfin music remote",
	}

	var (
		broker    string
		topicBase string
		identity  string
		node      string
		timeout   time.Duration
		jsonOut   bool
		verbose   bool
		tlsCA     string
		tlsCert   string
		tlsKey    string
		userOpt   string
		passOpt   string
	)

	root.PersistentFlags().StringVarP(&broker, "broker", "b", "", "MQTT broker URL")
	root.PersistentFlags().StringVar(&topicBase, "topic-base", bp.BaseTopic, "MQTT topic base")
	root.PersistentFlags().StringVarP(&identity, "identity", "i", "", "controller identity")
	root.PersistentFlags().StringVarP(&node, "node", "n", "", "player node id")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "command timeout")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	root.PersistentFlags().StringVar(&tlsCA, "tls-ca", "", "TLS CA path")
	root.PersistentFlags().StringVar(&tlsCert, "tls-cert", "", "TLS cert path")
	root.PersistentFlags().StringVar(&tlsKey, "tls-key", "", "TLS key path")
	root.PersistentFlags().StringVar(&userOpt, "user", "", "MQTT username")
	root.PersistentFlags().StringVar(&passOpt, "pass", "", "MQTT password")

	var bus *lazyBroker

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		identity = defaultIdentity(identity, cfg.Identity)
		if broker == "" {
			broker = cfg.Broker
		}
		if topicBase == bp.BaseTopic && cfg.TopicBase != "" {
			topicBase = cfg.TopicBase
		}
		if node == "" {
			node = cfg.Node
		}

		sessionPath, err := session.DefaultPath()
		if err != nil {
			return err
		}
		store, err := session.NewFileStore(sessionPath)
		if err != nil {
			return err
		}

		logger := zap.NewNop()
		if verbose {
			logger, err = zap.NewDevelopment()
			if err != nil {
				return err
			}
		}

		dispatcher := dispatch.New(logger)
		go func() { _ = dispatcher.Run(cmd.Context()) }()

		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "botify"
		}

		bus = &lazyBroker{options: mqtt.Options{
			BrokerURL: broker,
			ClientID:  fmt.Sprintf("botify-%d", time.Now().UnixNano()),
			Username:  userOpt,
			Password:  passOpt,
			TLSCA:     tlsCA,
			TLSCert:   tlsCert,
			TLSKey:    tlsKey,
			TopicBase: topicBase,
			Timeout:   timeout,
		}}

		service := &core.Service{
			Log:    logger,
			Store:  store,
			Broker: bus,
			Dispatcher: dispatcher,
			DeviceName: hostname,
			Config: core.Config{
				Broker:    broker,
				Identity:  identity,
				TopicBase: topicBase,
				Node:      node,
			},
			NewLibrary: func(server string, id jellyfin.Identity) core.Library {
				return jellyfin.NewClient(logger, server, id)
			},
		}

		var printer output.Printer
		if jsonOut {
			printer = output.JSONPrinter{}
		} else {
			printer = output.HumanPrinter{}
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			service: service,
			printer: printer,
			timeout: timeout,
		}))
		return nil
	}

	root.AddCommand(loginCommand())
	root.AddCommand(logoutCommand())
	root.AddCommand(sessionCommand())
	root.AddCommand(tracksCommand())
	root.AddCommand(nodesCommand())
	root.AddCommand(statusCommand())
	root.AddCommand(playCommand())
	root.AddCommand(pauseCommand())
	root.AddCommand(toggleCommand())
	root.AddCommand(stopCommand())
	root.AddCommand(seekCommand())
	root.AddCommand(volumeCommand())

	err := root.ExecuteContext(ctx)
	if bus != nil {
		bus.disconnect()
	}
	if err != nil {
		os.Exit(core.ExitCode(err))
	}
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

func defaultIdentity(flagVal string, cfgVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if cfgVal != "" {
		return cfgVal
	}
	usr, _ := user.Current()
	host, _ := os.Hostname()
	if usr != nil && host != "" {
		return fmt.Sprintf("%s@%s", usr.Username, host)
	}
	if host != "" {
		return host
	}
	return "botify-unknown"
}

// lazyBroker dials the broker on first use so catalog and login commands work
// without one configured.
type lazyBroker struct {
	options mqtt.Options

	mu     sync.Mutex
	client *mqtt.Client
	err    error
}

func (b *lazyBroker) connect() (*mqtt.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil || b.err != nil {
		return b.client, b.err
	}
	if b.options.BrokerURL == "" {
		b.err = errors.New("broker is required (set --broker or config)")
		return nil, b.err
	}
	b.client, b.err = mqtt.NewClient(b.options)
	return b.client, b.err
}

func (b *lazyBroker) disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Disconnect()
	}
}

func (b *lazyBroker) ReplyTopic() string {
	return bp.TopicReply(b.options.TopicBase, b.options.ClientID)
}

func (b *lazyBroker) PublishCommand(ctx context.Context, nodeID string, cmd bp.CommandEnvelope) (bp.ReplyEnvelope, error) {
	client, err := b.connect()
	if err != nil {
		return bp.ReplyEnvelope{}, err
	}
	return client.PublishCommand(ctx, nodeID, cmd)
}

func (b *lazyBroker) ListPresence(ctx context.Context) ([]bp.Presence, error) {
	client, err := b.connect()
	if err != nil {
		return nil, err
	}
	return client.ListPresence(ctx)
}

func (b *lazyBroker) GetPlayerState(ctx context.Context, nodeID string) (bp.PlayerState, error) {
	client, err := b.connect()
	if err != nil {
		return bp.PlayerState{}, err
	}
	return client.GetPlayerState(ctx, nodeID)
}

func (b *lazyBroker) WatchPlayer(ctx context.Context, nodeID string) (<-chan bp.PlayerState, <-chan error) {
	client, err := b.connect()
	if err != nil {
		errs := make(chan error, 1)
		errs <- err
		return make(chan bp.PlayerState), errs
	}
	return client.WatchPlayer(ctx, nodeID)
}

var _ ports.Broker = (*lazyBroker)(nil)
